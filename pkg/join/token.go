package join

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jitaccess/broker/pkg/principal"
)

// ProposalClaims is the signed proposal token's wire shape, per spec
// §6.2: jti, iss, aud, iat, exp, usr, grp, rcp, inp. Grounded on
// identity.IdentityClaims (embeds jwt.RegisteredClaims, adds
// domain-specific fields), with the claim set swapped for this domain.
type ProposalClaims struct {
	jwt.RegisteredClaims
	User       string            `json:"usr"`
	Group      string            `json:"grp"`
	Recipients []string          `json:"rcp"`
	Inputs     map[string]string `json:"inp"`
}

const (
	tokenIssuer   = "jitaccess/broker"
	tokenAudience = "jitaccess/broker/approve"
)

// ProposalPayload is the decoded, typed form of a proposal token used by
// the join/approve state machine.
type ProposalPayload struct {
	JTI        string
	IssuedAt   time.Time
	Expiry     time.Time
	User       principal.ID
	Group      principal.ID
	Recipients []principal.ID
	Inputs     map[string]string
}

// SignedToken is the result of signing a proposal.
type SignedToken struct {
	Token    string
	IssuedAt time.Time
	Expiry   time.Time
}

// Signer signs and verifies proposal tokens. The opaque token string is
// the only thing that crosses the trust boundary to the recipient.
type Signer interface {
	Sign(user principal.ID, group principal.ID, recipients []principal.ID, inputs map[string]string, ttl time.Duration) (SignedToken, error)
	Verify(token string) (ProposalPayload, error)
}

// JWTSigner implements Signer over golang-jwt/jwt/v5 and a KeySet,
// grounded on identity.TokenManager.
type JWTSigner struct {
	keys KeySet
}

// NewJWTSigner returns a Signer backed by keys.
func NewJWTSigner(keys KeySet) *JWTSigner {
	return &JWTSigner{keys: keys}
}

// Sign builds deterministic claims (recipients sorted by canonical
// string, per spec §6.2) and signs them with the current key.
func (s *JWTSigner) Sign(user, group principal.ID, recipients []principal.ID, inputs map[string]string, ttl time.Duration) (SignedToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)

	rcp := make([]string, len(recipients))
	for i, r := range recipients {
		rcp[i] = r.String()
	}
	sort.Strings(rcp)

	claims := ProposalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		User:       user.String(),
		Group:      group.String(),
		Recipients: rcp,
		Inputs:     copyInputs(inputs),
	}

	tok, err := s.keys.Sign(context.Background(), claims)
	if err != nil {
		return SignedToken{}, fmt.Errorf("join: signing proposal token: %w", err)
	}
	return SignedToken{Token: tok, IssuedAt: now, Expiry: exp}, nil
}

// Verify parses and validates token, checking signature, issuer,
// audience and expiry, and decodes its claims into a ProposalPayload.
func (s *JWTSigner) Verify(tokenString string) (ProposalPayload, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ProposalClaims{}, s.keys.KeyFunc(),
		jwt.WithIssuer(tokenIssuer), jwt.WithAudience(tokenAudience))
	if err != nil {
		return ProposalPayload{}, fmt.Errorf("join: verifying proposal token: %w", err)
	}
	claims, ok := token.Claims.(*ProposalClaims)
	if !ok || !token.Valid {
		return ProposalPayload{}, fmt.Errorf("join: invalid proposal token")
	}

	user, ok := principal.Parse(claims.User)
	if !ok {
		return ProposalPayload{}, fmt.Errorf("join: malformed usr claim %q", claims.User)
	}
	group, ok := principal.Parse(claims.Group)
	if !ok {
		return ProposalPayload{}, fmt.Errorf("join: malformed grp claim %q", claims.Group)
	}
	recipients := make([]principal.ID, 0, len(claims.Recipients))
	for _, r := range claims.Recipients {
		id, ok := principal.Parse(r)
		if !ok {
			return ProposalPayload{}, fmt.Errorf("join: malformed rcp entry %q", r)
		}
		recipients = append(recipients, id)
	}

	var issuedAt, expiry time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	return ProposalPayload{
		JTI: claims.ID, IssuedAt: issuedAt, Expiry: expiry,
		User: user, Group: group, Recipients: recipients,
		Inputs: copyInputs(claims.Inputs),
	}, nil
}

func copyInputs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
