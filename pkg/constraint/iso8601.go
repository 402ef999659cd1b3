package constraint

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseISO8601Duration parses the subset of ISO 8601 durations this
// module needs: P[nD]T[nH][nM][nS] (and PnD alone). Inputs are trimmed
// before parsing, per spec §4.5 ("durations accept the standard ISO 8601
// duration notation after trimming").
func ParseISO8601Duration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != 'P' {
		return 0, fmt.Errorf("constraint: duration %q must start with P", s)
	}
	rest := s[1:]
	datePart, timePart, hasTime := strings.Cut(rest, "T")
	if !hasTime {
		datePart = rest
	}

	var total time.Duration
	if datePart != "" {
		days, err := consumeUnit(&datePart, 'D')
		if err != nil {
			return 0, err
		}
		if datePart != "" {
			return 0, fmt.Errorf("constraint: unsupported duration component in %q", s)
		}
		total += time.Duration(days) * 24 * time.Hour
	}
	if hasTime {
		if timePart == "" {
			return 0, fmt.Errorf("constraint: empty time component in %q", s)
		}
		hours, err := consumeUnit(&timePart, 'H')
		if err != nil {
			return 0, err
		}
		minutes, err := consumeUnit(&timePart, 'M')
		if err != nil {
			return 0, err
		}
		seconds, err := consumeUnit(&timePart, 'S')
		if err != nil {
			return 0, err
		}
		if timePart != "" {
			return 0, fmt.Errorf("constraint: unsupported duration component in %q", s)
		}
		total += time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	}
	return total, nil
}

// consumeUnit extracts a leading "<digits><unit>" prefix from *s, if
// present, returning the numeric value and advancing *s past it.
func consumeUnit(s *string, unit byte) (int, error) {
	idx := strings.IndexByte(*s, unit)
	if idx < 0 {
		return 0, nil
	}
	digits := (*s)[:idx]
	*s = (*s)[idx+1:]
	if digits == "" {
		return 0, fmt.Errorf("constraint: missing digits before %q", string(unit))
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("constraint: invalid duration digits %q: %w", digits, err)
	}
	return n, nil
}

// FormatISO8601Duration renders d in the PT..H..M..S form used by
// extractExpiry's round-trip and by diagnostics.
func FormatISO8601Duration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	var b strings.Builder
	b.WriteByte('P')
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds > 0 {
			fmt.Fprintf(&b, "%dS", seconds)
		}
	}
	return b.String()
}
