package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridiculousfish/fish-shell/internal/sched"
)

// TestPerThreadConsistency is a function: for any Per-Thread Variable V
// and any Script-Thread T, if T writes v to V while scheduled and later
// becomes scheduled again without destruction, it reads v on the first
// access (spec §8 "per-thread state consistency").
func TestPerThreadConsistency(t *testing.T) {
	g := sched.New(nil)
	status := NewPerThread(0)
	g.AddObserver(status)

	a := g.Spawn()
	g.Run(a)
	status.Set(42)

	b := g.Spawn()
	bScheduled := make(chan struct{})
	go func() {
		g.Run(b)
		close(bScheduled)
	}()

	g.Release(a)
	<-bScheduled
	assert.Equal(t, 0, status.Get(), "b should see its own initial slot, not a's 42")
	status.Set(7)
	g.Release(b)

	g.Run(a)
	assert.Equal(t, 42, status.Get(), "a must read back the 42 it wrote before last unscheduling")
}

// TestPerThreadCWDIsolation is a function (spec §8 "CWD isolation").
func TestPerThreadCWDIsolation(t *testing.T) {
	g := sched.New(nil)
	cwd := NewPerThread("/root")
	g.AddObserver(cwd)

	root := g.Spawn()
	g.Run(root)

	childA := g.Spawn() // snapshots "/root"
	childB := g.Spawn()

	g.Release(root)

	g.Run(childA)
	cwd.Set("/a")
	g.Release(childA)

	g.Run(childB)
	assert.Equal(t, "/root", cwd.Get(), "childB must not see childA's cd")
	cwd.Set("/b")
	g.Release(childB)

	g.Run(childA)
	assert.Equal(t, "/a", cwd.Get())
	g.Release(childA)
}

// TestPerThreadSeedForOverridesSnapshot is a function: models $status
// always starting at zero in a branched child (spec §4.2, §9).
func TestPerThreadSeedForOverridesSnapshot(t *testing.T) {
	g := sched.New(nil)
	status := NewPerThread(0)
	g.AddObserver(status)

	root := g.Spawn()
	g.Run(root)
	status.Set(17)

	child := g.Spawn() // snapshots 17 by default
	status.SeedFor(child.ID(), 0)

	g.Release(root)
	g.Run(child)
	assert.Equal(t, 0, status.Get())
	g.Release(child)
}

// TestPerThreadDestroyDropsSlot is a function.
func TestPerThreadDestroyDropsSlot(t *testing.T) {
	g := sched.New(nil)
	v := NewPerThread(1)
	g.AddObserver(v)

	a := g.Spawn()
	g.Run(a)
	g.Release(a)
	g.Destroy(a)

	require.Panics(t, func() {
		v.WillUnschedule(a.ID())
	})
}
