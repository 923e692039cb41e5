package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	t.Run("drops blanks and repeats", func(t *testing.T) {
		got := DedupeAndTrim([]string{" /uploads/a.pdf", "/uploads/a.pdf", "", "   ", "/uploads/b.png"})
		assert.Equal(t, []string{"/uploads/a.pdf", "/uploads/b.png"}, got)
	})

	t.Run("case is significant", func(t *testing.T) {
		got := DedupeAndTrim([]string{"https://app.example.org", "HTTPS://APP.EXAMPLE.ORG"})
		assert.Len(t, got, 2)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, DedupeAndTrim(nil))
	})
}
