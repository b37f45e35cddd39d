package report

import "strings"

const maxNameLen = 128

// FileName joins parts with underscores into a name that is safe to use as
// a file name: characters other than ASCII letters, digits, dot, underscore
// and dash become a single underscore.
func FileName(parts ...string) string {
	var b strings.Builder
	lastUnderscore := false
	for i, p := range parts {
		if i > 0 && !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
		for _, r := range p {
			if b.Len() >= maxNameLen {
				break
			}
			switch {
			case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
				r == '.' || r == '-':
				b.WriteRune(r)
				lastUnderscore = false
			default:
				if !lastUnderscore {
					b.WriteByte('_')
					lastUnderscore = true
				}
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unnamed"
	}
	return out
}
