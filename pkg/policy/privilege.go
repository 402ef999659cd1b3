package policy

import (
	"hash/crc32"

	"github.com/jitaccess/broker/pkg/principal"
)

// Privilege is a declared role binding attached to a JIT group.
// Provisioning of the underlying IAM binding is performed by the
// external collaborator behind pkg/provision.
type Privilege struct {
	ResourceID  principal.ResourceID
	Role        principal.RoleID
	Description string
	Condition   string
}

// Equal reports whether p and other bind the same role on the same
// resource with the same description and condition; per spec §3, two
// role bindings are equivalent iff all four fields match.
func (p Privilege) Equal(other Privilege) bool {
	return p.ResourceID == other.ResourceID &&
		p.Role == other.Role &&
		p.Description == other.Description &&
		p.Condition == other.Condition
}

// Checksum returns a stable 32-bit checksum over the four-field tuple.
// The codec does not use it; it detects duplicates by resource and role.
func (p Privilege) Checksum() uint32 {
	h := crc32.NewIEEE()
	for _, s := range []string{p.ResourceID.String(), p.Role.String(), p.Description, p.Condition} {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum32()
}
