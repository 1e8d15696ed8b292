package pdf

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const softHyphen = '\u00ad'

// Normalize cleans text extracted from a PDF.
//
//   - CRLF, CR and form feeds become newlines.
//   - Control characters and soft hyphens are removed; tabs become spaces.
//   - Whitespace inside a line collapses to single spaces.
//   - A line ending in letter+"-" is joined with the next line when that
//     line starts with a lowercase letter ("inter-\nnational").
//   - Runs of blank lines collapse to one; leading and trailing blank lines
//     are dropped.
//
// Normalize is pure and idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n").Replace(text)

	var clean strings.Builder
	clean.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			clean.WriteRune(r)
		case r == '\t':
			clean.WriteRune(' ')
		case r == softHyphen || unicode.IsControl(r):
		default:
			clean.WriteRune(r)
		}
	}

	raw := strings.Split(clean.String(), "\n")
	for i, line := range raw {
		raw[i] = strings.Join(strings.Fields(line), " ")
	}

	joined := make([]string, 0, len(raw))
	for _, line := range raw {
		if n := len(joined); n > 0 && joinsHyphenated(joined[n-1], line) {
			prev := joined[n-1]
			joined[n-1] = prev[:len(prev)-1] + line
			continue
		}
		joined = append(joined, line)
	}

	out := make([]string, 0, len(joined))
	for _, line := range joined {
		if line == "" && (len(out) == 0 || out[len(out)-1] == "") {
			continue
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func joinsHyphenated(prev, next string) bool {
	if len(prev) < 2 || !strings.HasSuffix(prev, "-") || next == "" {
		return false
	}
	before, _ := utf8.DecodeLastRuneInString(prev[:len(prev)-1])
	first, _ := utf8.DecodeRuneInString(next)
	return unicode.IsLetter(before) && unicode.IsLower(first)
}
