package pdf

import (
	"path/filepath"
	"strings"
	"unicode"
)

// MaxFilenameLength caps sanitized names, in runes.
const MaxFilenameLength = 200

// SanitizeFilename makes name safe to use as a single path element.
//
// Reserved characters (<>:"/\|?*) and control characters become '_'. Names
// longer than MaxFilenameLength are shortened with "..." before the
// extension.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(`<>:"/\|?*`, r) || unicode.IsControl(r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if out == "" || strings.Trim(out, ".") == "" {
		return "untitled"
	}

	runes := []rune(out)
	if len(runes) <= MaxFilenameLength {
		return out
	}

	ext := []rune(filepath.Ext(out))
	if len(ext) > 10 {
		ext = nil
	}
	keep := MaxFilenameLength - len(ext) - 3
	return string(runes[:keep]) + "..." + string(ext)
}
