package syncstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_TrackStartsInitializing(t *testing.T) {
	m := New()
	require.True(t, m.Track("alice"))
	assert.False(t, m.Track("alice"))

	st, gen, ok := m.Current("alice")
	require.True(t, ok)
	assert.Equal(t, Initializing, st)
	assert.Equal(t, uint64(1), gen)

	_, _, ok = m.Current("bob")
	assert.False(t, ok)
}

func TestMachine_EnterIsCompareAndSet(t *testing.T) {
	m := New()
	m.Track("o")

	_, ok := m.Enter("o", Uploading, Idle)
	assert.False(t, ok, "INITIALIZING cannot start an upload")

	gen, ok := m.Enter("o", Downloading, Initializing, Idle)
	require.True(t, ok)
	assert.True(t, m.Is("o", Downloading, gen))

	_, ok = m.Enter("o", Downloading, Initializing, Idle)
	assert.False(t, ok, "second download must not start")

	_, ok = m.Enter("ghost", Idle)
	assert.False(t, ok)
}

func TestMachine_FinishOnlyForSameGeneration(t *testing.T) {
	m := New()
	m.Track("o")
	m.Enter("o", Idle)

	gen, ok := m.Enter("o", Uploading, Idle)
	require.True(t, ok)

	// a cancel slipped in and a new upload started
	m.Reset("o", nil)
	gen2, ok := m.Enter("o", Uploading, Idle)
	require.True(t, ok)

	ran := false
	assert.False(t, m.Finish("o", Uploading, gen, func() { ran = true }))
	assert.False(t, ran)
	assert.True(t, m.Is("o", Uploading, gen2))

	assert.True(t, m.Finish("o", Uploading, gen2, func() { ran = true }))
	assert.True(t, ran)
	st, _, _ := m.Current("o")
	assert.Equal(t, Idle, st)
}

func TestMachine_ResetDiscardsAndIsIdempotent(t *testing.T) {
	m := New()
	m.Track("o")
	gen, _ := m.Enter("o", Downloading)

	discards := 0
	prev, ok := m.Reset("o", func() { discards++ })
	require.True(t, ok)
	assert.Equal(t, Downloading, prev)
	assert.False(t, m.Is("o", Downloading, gen))

	_, genIdle, _ := m.Current("o")
	prev, ok = m.Reset("o", func() { discards++ })
	require.True(t, ok)
	assert.Equal(t, Idle, prev)
	_, genAfter, _ := m.Current("o")
	assert.Equal(t, genIdle, genAfter, "reset of an idle owner does not bump the generation")
	assert.Equal(t, 2, discards)

	_, ok = m.Reset("ghost", func() { discards++ })
	assert.False(t, ok)
	assert.Equal(t, 2, discards)
}

func TestMachine_CancelRacesCompletion(t *testing.T) {
	for i := 0; i < 200; i++ {
		m := New()
		m.Track("o")
		gen, _ := m.Enter("o", Downloading)

		var wg sync.WaitGroup
		var applied, discarded bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Finish("o", Downloading, gen, func() { applied = true })
		}()
		go func() {
			defer wg.Done()
			m.Reset("o", func() { discarded = true })
		}()
		wg.Wait()

		st, _, _ := m.Current("o")
		assert.Equal(t, Idle, st)
		// the reset always runs its discard, the completion may or may not win
		assert.True(t, discarded)
		_ = applied
	}
}

func TestMachine_UntrackAndOwners(t *testing.T) {
	m := New()
	m.Track("b")
	m.Track("a")
	m.Enter("a", Idle)
	assert.Equal(t, []string{"a", "b"}, m.Owners())
	assert.Equal(t, map[State]int{Idle: 1, Initializing: 1}, m.Counts())

	cleaned := false
	assert.True(t, m.Untrack("a", func() { cleaned = true }))
	assert.True(t, cleaned)
	assert.False(t, m.Untrack("a", nil))
	assert.Equal(t, []string{"b"}, m.Owners())
}

func TestMachine_OnTransition(t *testing.T) {
	m := New()
	var seen []string
	m.OnTransition = func(owner string, from, to State) {
		seen = append(seen, from.String()+">"+to.String())
	}
	m.Track("o")
	m.Enter("o", Idle, Initializing)
	m.Enter("o", Uploading, Idle)
	m.Reset("o", nil)

	assert.Equal(t, []string{
		"INITIALIZING>INITIALIZING",
		"INITIALIZING>IDLE",
		"IDLE>UPLOADING",
		"UPLOADING>IDLE",
	}, seen)
	assert.Equal(t, "State(9)", State(9).String())
}

func TestMachine_AdvanceRunsFnAtomically(t *testing.T) {
	m := New()
	m.Track("o")
	_, gen, _ := m.Current("o")

	ran := false
	gen2, ok := m.Advance("o", Initializing, gen, Downloading, func() { ran = true })
	require.True(t, ok)
	assert.True(t, ran)
	assert.Equal(t, gen+1, gen2)
	assert.True(t, m.Is("o", Downloading, gen2))

	_, ok = m.Advance("o", Initializing, gen, Idle, func() { t.Fatal("stale generation must not run fn") })
	assert.False(t, ok)
}

func TestMachine_While(t *testing.T) {
	m := New()
	m.Track("o")
	gen, _ := m.Enter("o", Downloading)

	var got uint64
	assert.True(t, m.While("o", Downloading, func(g uint64) { got = g }))
	assert.Equal(t, gen, got)

	assert.False(t, m.While("o", Uploading, func(uint64) { t.Fatal("wrong state") }))
	assert.False(t, m.While("ghost", Downloading, func(uint64) { t.Fatal("untracked") }))
}
