package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line endings", "a\r\nb\rc\fd", "a\nb\nc\nd"},
		{"inner whitespace", "  lots   of\t\tspace  ", "lots of space"},
		{"hyphenated break", "inter-\nnational trade", "international trade"},
		{"chained hyphen breaks", "co-\nop-\neration", "cooperation"},
		{"capitalised continuation kept", "Smith-\nJones", "Smith-\nJones"},
		{"hyphen after digit kept", "COVID-19 and 2020-\nspring", "COVID-19 and 2020-\nspring"},
		{"blank line runs", "para one\n\n\n\npara two", "para one\n\npara two"},
		{"leading and trailing blanks", "\n\n  \ntext\n\n \n", "text"},
		{"soft hyphen and controls", "de\u00adcoded\x00 text\x07", "decoded text"},
		{"whitespace only lines become blank", "a\n   \t \nb", "a\n\nb"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	alphabet := rapid.SampledFrom([]string{"a", "B", "z", "-", " ", "\t", "\n", "\r", "\f", "\u00ad", "\x00", "é", "1"})
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(alphabet, 0, 80).Draw(t, "parts")
		s := strings.Join(parts, "")

		once := Normalize(s)
		if twice := Normalize(once); twice != once {
			t.Fatalf("not idempotent:\n in:    %q\n once:  %q\n twice: %q", s, once, twice)
		}
		if strings.Contains(once, "\n\n\n") || strings.Contains(once, "  ") {
			t.Fatalf("uncollapsed whitespace in %q", once)
		}
	})
}

func TestNormalize_ArbitraryStrings(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		once := Normalize(s)
		if Normalize(once) != once {
			t.Fatalf("not idempotent for %q", s)
		}
	})
}
