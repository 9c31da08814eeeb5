// Package syncstate gates which transfer work may start for an owner.
//
// Every transition bumps the owner's generation. Work scheduled under one
// generation checks it again before touching sessions, so a cancel, a
// superseding change or a disconnect that happened in between is noticed.
package syncstate

import (
	"fmt"
	"sort"
	"sync"
)

type State uint8

const (
	Initializing State = iota
	Idle
	Uploading
	Downloading
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case Idle:
		return "IDLE"
	case Uploading:
		return "UPLOADING"
	case Downloading:
		return "DOWNLOADING"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

type entry struct {
	state State
	gen   uint64
}

// Machine holds the state of every tracked owner.
type Machine struct {
	mu     sync.Mutex
	owners map[string]*entry
	// OnTransition, when set, observes every change. It runs with the lock
	// held and must not call back into the machine.
	OnTransition func(owner string, from, to State)
}

func New() *Machine {
	return &Machine{owners: make(map[string]*entry)}
}

// Track starts following owner in INITIALIZING. It reports false if owner is
// already tracked, in which case nothing changes.
func (m *Machine) Track(owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owners[owner]; ok {
		return false
	}
	m.owners[owner] = &entry{state: Initializing, gen: 1}
	m.notify(owner, Initializing, Initializing)
	return true
}

// Untrack forgets owner. discard, if not nil, runs in the same critical section.
func (m *Machine) Untrack(owner string, discard func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owners[owner]; !ok {
		return false
	}
	delete(m.owners, owner)
	if discard != nil {
		discard()
	}
	return true
}

// Current returns the owner's state and generation.
func (m *Machine) Current(owner string) (State, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.owners[owner]
	if !ok {
		return 0, 0, false
	}
	return e.state, e.gen, true
}

// Is reports whether owner is still in state at generation gen.
func (m *Machine) Is(owner string, state State, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.owners[owner]
	return ok && e.state == state && e.gen == gen
}

// Enter moves owner to `to` if its current state is one of from (any state
// when from is empty) and returns the new generation.
func (m *Machine) Enter(owner string, to State, from ...State) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.owners[owner]
	if !ok {
		return 0, false
	}
	if len(from) > 0 && !contains(from, e.state) {
		return 0, false
	}
	m.move(owner, e, to)
	return e.gen, true
}

// Advance moves owner from state `from` at generation gen to `to`, running fn
// in the same critical section. It fails if anything happened since gen.
func (m *Machine) Advance(owner string, from State, gen uint64, to State, fn func()) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.owners[owner]
	if !ok || e.state != from || e.gen != gen {
		return 0, false
	}
	if fn != nil {
		fn()
	}
	m.move(owner, e, to)
	return e.gen, true
}

// Finish is Advance to IDLE. It reports false when the transition was lost.
func (m *Machine) Finish(owner string, from State, gen uint64, fn func()) bool {
	_, ok := m.Advance(owner, from, gen, Idle, fn)
	return ok
}

// While runs fn with the current generation if owner is in state, holding the
// lock so no transition can interleave.
func (m *Machine) While(owner string, state State, fn func(gen uint64)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.owners[owner]
	if !ok || e.state != state {
		return false
	}
	fn(e.gen)
	return true
}

// Reset forces owner to IDLE from any state and runs discard in the same
// critical section. Repeating it is harmless; the previous state is returned.
func (m *Machine) Reset(owner string, discard func()) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.owners[owner]
	if !ok {
		return 0, false
	}
	prev := e.state
	if discard != nil {
		discard()
	}
	if prev != Idle {
		m.move(owner, e, Idle)
	}
	return prev, true
}

// Owners lists tracked owners in sorted order.
func (m *Machine) Owners() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.owners))
	for o := range m.owners {
		out = append(out, o)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

// Counts returns how many owners sit in each state.
func (m *Machine) Counts() map[State]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[State]int, 4)
	for _, e := range m.owners {
		out[e.state]++
	}
	return out
}

func (m *Machine) move(owner string, e *entry, to State) {
	from := e.state
	e.state = to
	e.gen++
	m.notify(owner, from, to)
}

func (m *Machine) notify(owner string, from, to State) {
	if m.OnTransition != nil {
		m.OnTransition(owner, from, to)
	}
}

func contains(states []State, s State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}
