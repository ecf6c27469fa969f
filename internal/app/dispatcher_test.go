package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_RunsInOrder(t *testing.T) {
	d := NewDispatcher(nil)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		d.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.Stop()

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := NewDispatcher(nil)

	ran := false
	d.Post(func() { panic("listener bug") })
	d.Post(func() { ran = true })
	d.Stop()

	assert.True(t, ran)
}

func TestDispatcher_DropsAfterStop(t *testing.T) {
	d := NewDispatcher(nil)
	d.Stop()
	d.Stop()

	ran := false
	d.Post(func() { ran = true })
	assert.False(t, ran)
}
