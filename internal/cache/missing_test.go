package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingRanges(t *testing.T) {
	t.Run("nothing present returns the entire range", func(t *testing.T) {
		got := missingRanges(0, 300, 100, map[int64]bool{})
		assert.Equal(t, [][2]int64{{0, 300}}, got)
	})

	t.Run("everything present returns no ranges", func(t *testing.T) {
		present := map[int64]bool{0: true, 100: true, 200: true, 300: true}
		got := missingRanges(0, 300, 100, present)
		assert.Nil(t, got)
	})

	t.Run("single gap in the middle collapses to one range", func(t *testing.T) {
		present := map[int64]bool{0: true, 300: true}
		got := missingRanges(0, 300, 100, present)
		assert.Equal(t, [][2]int64{{100, 200}}, got)
	})

	t.Run("two disjoint gaps stay separate", func(t *testing.T) {
		present := map[int64]bool{0: true, 200: true, 400: true}
		got := missingRanges(0, 400, 100, present)
		assert.Equal(t, [][2]int64{{100, 100}, {300, 300}}, got)
	})
}

func TestExpectedCount(t *testing.T) {
	t.Run("matches spec's missing-range law", func(t *testing.T) {
		assert.Equal(t, int64(4), expectedCount(0, 300, 100))
		assert.Equal(t, int64(1), expectedCount(50, 50, 100))
	})

	t.Run("inverted range yields zero", func(t *testing.T) {
		assert.Equal(t, int64(0), expectedCount(300, 0, 100))
	})
}
