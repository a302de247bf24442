// Package memory provides an in-memory TxScope for local runs and tests. Each unit
// of work operates on a copy of the state that replaces the live state only when
// the unit succeeds.
package memory

import (
	"context"
	"sync"

	"bibliotheque/library"
)

type state struct {
	books        map[string]library.Book
	members      map[string]library.Member
	loans        map[string]library.Loan
	reservations map[string]library.Reservation
}

func newState() state {
	return state{
		books:        make(map[string]library.Book),
		members:      make(map[string]library.Member),
		loans:        make(map[string]library.Loan),
		reservations: make(map[string]library.Reservation),
	}
}

func (s state) clone() state {
	c := state{
		books:        make(map[string]library.Book, len(s.books)),
		members:      make(map[string]library.Member, len(s.members)),
		loans:        make(map[string]library.Loan, len(s.loans)),
		reservations: make(map[string]library.Reservation, len(s.reservations)),
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	return c
}

// Store keeps the library state in memory. Units of work are serialized.
type Store struct {
	mu    sync.Mutex
	state state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Execute runs fn against a copy of the state and publishes the copy on success.
func (s *Store) Execute(ctx context.Context, fn func(ctx context.Context, repos library.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := &unit{state: s.state.clone()}
	if err := fn(ctx, u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = u.state
	return nil
}

// Close is a no-op kept for symmetry with the SQL store.
func (s *Store) Close() error { return nil }

type unit struct {
	state state
}

func (u *unit) Books() library.BookRepository               { return bookRepository{u} }
func (u *unit) Members() library.MemberRepository           { return memberRepository{u} }
func (u *unit) Loans() library.LoanRepository               { return loanRepository{u} }
func (u *unit) Reservations() library.ReservationRepository { return reservationRepository{u} }

var (
	_ library.TxScope      = (*Store)(nil)
	_ library.Repositories = (*unit)(nil)
)
