// Package pipeline wires the gates into one thread-safe execution path. A
// single mutex owned by the Book guards the position set, the account view,
// and the persisted state; broker I/O happens outside the lock and results
// are committed store-first, memory-second.
package pipeline

import (
	"sync"

	"main/internal/schema"
)

// Book is the shared mutable state of the pipeline. The mutex is NOT
// re-entrant: exit-triggered closes go through the private unlocked close
// path instead of re-acquiring it.
type Book struct {
	mu sync.Mutex

	positions map[string]schema.Position // keyed by position ID
	account   schema.AccountState
	state     schema.PersistedState
}

// newBook seeds the book from recovered persisted state.
func newBook(st schema.PersistedState) *Book {
	b := &Book{
		positions: make(map[string]schema.Position, len(st.Positions)),
		state:     st,
	}
	for _, p := range st.Positions {
		b.positions[p.ID] = p
	}
	b.state.Positions = nil
	return b
}

// Unlocked accessors below are called only while b.mu is held.

func (b *Book) openLocked() []schema.Position {
	out := make([]schema.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out
}

func (b *Book) byTickerLocked(ticker string) (schema.Position, bool) {
	for _, p := range b.positions {
		if p.Ticker == ticker {
			return p, true
		}
	}
	return schema.Position{}, false
}

// stateWithPositionsLocked renders the persisted snapshot including the
// current open set, ready for a store write.
func (b *Book) stateWithPositionsLocked() schema.PersistedState {
	st := b.state
	st.Positions = b.openLocked()
	return st
}

// Account returns a copy of the last refreshed account view.
func (b *Book) Account() schema.AccountState {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.account
	acct.OpenPositions = b.openLocked()
	acct.DailyPnL = b.state.DailyPnL
	acct.DailyTrades = b.state.DailyTrades
	return acct
}

// OpenPositions returns a copy of the open position set.
func (b *Book) OpenPositions() []schema.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked()
}

// State returns a copy of the persisted state including positions.
func (b *Book) State() schema.PersistedState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateWithPositionsLocked()
}

// KillSwitch reports the kill-switch flag and its reason.
func (b *Book) KillSwitch() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.KillSwitchActive, b.state.KillSwitchReason
}
