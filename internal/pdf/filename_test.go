package pdf

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Attention Is All You Need.pdf", "Attention Is All You Need.pdf"},
		{"reserved characters", `a<b>c:d"e/f\g|h?i*j.pdf`, "a_b_c_d_e_f_g_h_i_j.pdf"},
		{"control characters", "tab\there\n.pdf", "tab_here_.pdf"},
		{"empty", "  ", "untitled"},
		{"dots only", "..", "untitled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}

	t.Run("long names keep the extension", func(t *testing.T) {
		got := SanitizeFilename(strings.Repeat("é", 300) + ".pdf")
		assert.Equal(t, MaxFilenameLength, utf8.RuneCountInString(got))
		assert.True(t, strings.HasSuffix(got, "....pdf"), got)
	})
}
