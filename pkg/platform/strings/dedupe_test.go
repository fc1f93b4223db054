package strings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	txA := strings.Repeat("ab", 32)
	txB := strings.Repeat("0f", 32)

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, DedupeAndTrimLower(nil))
	})

	t.Run("mixed case txids collapse", func(t *testing.T) {
		got := DedupeAndTrimLower([]string{strings.ToUpper(txA), txA, " " + txB + "\n"})
		assert.Equal(t, []string{txA, txB}, got)
	})

	t.Run("first occurrence wins the position", func(t *testing.T) {
		got := DedupeAndTrimLower([]string{txB, txA, strings.ToUpper(txB)})
		assert.Equal(t, []string{txB, txA}, got)
	})

	t.Run("blank entries are dropped", func(t *testing.T) {
		assert.Empty(t, DedupeAndTrimLower([]string{"", "   ", "\t"}))
	})

	t.Run("input is not modified", func(t *testing.T) {
		in := []string{" AB "}
		DedupeAndTrimLower(in)
		assert.Equal(t, " AB ", in[0])
	})
}
