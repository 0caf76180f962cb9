package selection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetSelectedThenClear(t *testing.T) {
	inputs := [][]string{
		nil,
		{},
		{"a@x.com"},
		{"a@x.com", "a@x.com", "b@y.com"},
	}

	for _, emails := range inputs {
		s := NewStore()
		s.SetSelected(emails)
		s.Clear()
		assert.Empty(t, s.Selected())
		assert.Equal(t, 0, s.Len())

		s.Clear()
		assert.Empty(t, s.Selected(), "clear must be idempotent")
	}
}

func TestSetSelectedReplaces(t *testing.T) {
	s := NewStore()
	s.SetSelected([]string{"a@x.com", "b@y.com"})
	s.SetSelected([]string{"c@z.com"})

	assert.Equal(t, []string{"c@z.com"}, s.Selected())
}

func TestSetSelectedKeepsDuplicates(t *testing.T) {
	s := NewStore()
	s.SetSelected([]string{"a@x.com", "a@x.com"})

	assert.Equal(t, 2, s.Len())
}

func TestSelectedIsCopy(t *testing.T) {
	in := []string{"a@x.com"}
	s := NewStore()
	s.SetSelected(in)
	in[0] = "mutated@x.com"

	out := s.Selected()
	out[0] = "mutated-again@x.com"

	assert.Equal(t, []string{"a@x.com"}, s.Selected())
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetSelected([]string{"a@x.com", "b@y.com"})
		}()
		go func() {
			defer wg.Done()
			n := len(s.Selected())
			assert.Contains(t, []int{0, 2}, n)
		}()
	}
	wg.Wait()
}
