package vault

import (
	"strings"
)

const maxFilenameLen = 100

// Windows reserves these device names even with an extension.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
}

// SanitizeFilename makes a note title safe to use as a file or directory
// name on common filesystems: forbidden characters become underscores,
// leading/trailing dots and spaces are trimmed, reserved device names are
// prefixed, and overlong names are truncated.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			b.WriteRune('_')
		default:
			if r < 0x20 {
				b.WriteRune('_')
			} else {
				b.WriteRune(r)
			}
		}
	}

	s := strings.Trim(b.String(), ". ")
	if s == "" {
		s = "untitled"
	}
	if reservedNames[strings.ToLower(s)] {
		s = "_" + s
	}
	if runes := []rune(s); len(runes) > maxFilenameLen {
		s = strings.TrimRight(string(runes[:maxFilenameLen]), ". ")
	}
	return s
}
