package textutil

import "strings"

var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a client supplied
// file name. Path separators, colons, and asterisks become dashes; other unsafe
// characters are removed. Leading dots are stripped so a name can never refer
// to a parent directory or a hidden file.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(fileNameReplacer.Replace(strings.TrimSpace(name)))
	return strings.TrimLeft(name, ".")
}

// SanitizeToken converts value to a lowercase filesystem-safe token. Letters,
// digits, hyphens, and underscores survive; everything else becomes an
// underscore. Empty input yields "unknown".
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}
