package generics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet(1, 2, 2)
	s.Add(3, 3)

	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(2))
	assert.True(t, s.Contains(3))
	assert.False(t, s.Contains(4))
	assert.ElementsMatch(t, []int{1, 2, 3}, s.Members())

	assert.True(t, s.AddNew(4))
	assert.False(t, s.AddNew(4))
	assert.Equal(t, []int{1, 2, 3, 4}, Sorted(s))
}

func TestSortedStrings(t *testing.T) {
	s := NewSet("payments", "checkout", "cart", "checkout")
	assert.Equal(t, []string{"cart", "checkout", "payments"}, Sorted(s))
	assert.Empty(t, Sorted(NewSet[string]()))
}
