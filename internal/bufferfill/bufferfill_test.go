package bufferfill

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridiculousfish/fish-shell/internal/buffer"
)

// TestFillDrainsUntilEOF is a function.
func TestFillDrainsUntilEOF(t *testing.T) {
	pr, pw := io.Pipe()
	buf := buffer.New(0)
	f := New(pr, buf, nil)
	f.Start()

	go func() {
		pw.Write([]byte("hello "))
		pw.Write([]byte("world"))
		pw.Close()
	}()

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fill did not complete")
	}

	assert.Equal(t, "hello world", string(buf.Serialize()))
}

// TestFillStartTwicePanics is a function.
func TestFillStartTwicePanics(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	buf := buffer.New(0)
	f := New(pr, buf, nil)
	f.Start()
	assert.Panics(t, func() {
		f.Start()
	})
}

// TestFillShutdownStopsDraining is a function.
func TestFillShutdownStopsDraining(t *testing.T) {
	pr, pw := io.Pipe()
	buf := buffer.New(0)
	f := New(pr, buf, nil)
	f.Start()

	f.Shutdown()
	pw.Close()

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fill did not complete after shutdown")
	}
	require.NotNil(t, f)
}

// TestFillOverflowStillDrainsToEOF is a function: once the buffer
// discards, the fill keeps draining (so the pipe doesn't back up) but
// stops mutating elements.
func TestFillOverflowStillDrainsToEOF(t *testing.T) {
	pr, pw := io.Pipe()
	buf := buffer.New(2)
	f := New(pr, buf, nil)
	f.Start()

	go func() {
		pw.Write([]byte("abcdef"))
		pw.Close()
	}()

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fill did not complete")
	}

	assert.True(t, buf.Discarded())
	assert.Equal(t, uint64(0), buf.Size())
}
