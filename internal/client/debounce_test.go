package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Close()

	var mu sync.Mutex
	runs := 0
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		d.Trigger("bookings", func() {
			mu.Lock()
			runs++
			mu.Unlock()
			close(done)
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced action never ran")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs, "a burst collapses into one run")
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	d.Trigger("bookings", wg.Done)
	d.Trigger("reviews", wg.Done)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent keys should both fire")
	}
}

func TestDebouncerFlushCancels(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Close()

	ran := make(chan struct{}, 1)
	d.Trigger("bookings", func() { ran <- struct{}{} })
	d.Flush("bookings")

	select {
	case <-ran:
		t.Fatal("flushed action must not run")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestDebouncerCloseStopsEverything(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	ran := make(chan struct{}, 2)
	d.Trigger("a", func() { ran <- struct{}{} })
	d.Close()
	d.Trigger("b", func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("no action may run after Close")
	case <-time.After(50 * time.Millisecond):
	}
	require.NotPanics(t, d.Close)
}
