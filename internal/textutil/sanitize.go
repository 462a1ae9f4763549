package textutil

import "strings"

// fileNameReplacer replaces characters that are invalid in file names on
// common filesystems.
var fileNameReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	"\"", "_",
	"/", "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizeFileName replaces filesystem-unsafe characters in a file name with
// underscores and strips control characters. Leading whitespace and trailing
// dots or spaces are trimmed.
func SanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = fileNameReplacer.Replace(name)
	name = strings.TrimLeft(name, " \t")
	return strings.TrimRight(name, ". \t")
}
