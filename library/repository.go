package library

import (
	"context"
	"time"
)

// BookRepository persists books. Get returns ErrNotFound for unknown ids and Add
// returns ErrAlreadyExists when the id is taken.
type BookRepository interface {
	Get(ctx context.Context, id string) (Book, error)
	Add(ctx context.Context, b Book) error
	Update(ctx context.Context, b Book) error
	Delete(ctx context.Context, id string) error
	FindAll(ctx context.Context, sort SortKey) ([]Book, error)
	// FindByTitle matches a case-insensitive substring of the title.
	FindByTitle(ctx context.Context, substr string) ([]Book, error)
	FindByBorrower(ctx context.Context, memberID string) ([]Book, error)
}

// MemberRepository persists members.
type MemberRepository interface {
	Get(ctx context.Context, id string) (Member, error)
	Add(ctx context.Context, m Member) error
	Update(ctx context.Context, m Member) error
	Delete(ctx context.Context, id string) error
	FindAll(ctx context.Context, sort SortKey) ([]Member, error)
}

// LoanRepository persists loans, open and closed.
type LoanRepository interface {
	Get(ctx context.Context, id string) (Loan, error)
	Add(ctx context.Context, l Loan) error
	Update(ctx context.Context, l Loan) error
	Delete(ctx context.Context, id string) error
	FindAll(ctx context.Context, sort SortKey) ([]Loan, error)
	// FindByBook returns the loan history of a book, oldest first.
	FindByBook(ctx context.Context, bookID string) ([]Loan, error)
	// FindOpenByBook returns the book's open loan or ErrNotFound.
	FindOpenByBook(ctx context.Context, bookID string) (Loan, error)
	FindByMember(ctx context.Context, memberID string) ([]Loan, error)
	// FindByLoanDate and FindByReturnDate match the calendar day (UTC) of day.
	FindByLoanDate(ctx context.Context, day time.Time) ([]Loan, error)
	FindByReturnDate(ctx context.Context, day time.Time) ([]Loan, error)
}

// ReservationRepository persists standing reservations.
type ReservationRepository interface {
	Get(ctx context.Context, id string) (Reservation, error)
	Add(ctx context.Context, r Reservation) error
	Delete(ctx context.Context, id string) error
	FindAll(ctx context.Context, sort SortKey) ([]Reservation, error)
	// FindByBook returns the book's queue ordered by reservation time, then id.
	FindByBook(ctx context.Context, bookID string) ([]Reservation, error)
	FindByMember(ctx context.Context, memberID string) ([]Reservation, error)
}

// Repositories gives access to all repositories of one unit of work. All of them
// share the same underlying transaction.
type Repositories interface {
	Books() BookRepository
	Members() MemberRepository
	Loans() LoanRepository
	Reservations() ReservationRepository
}

// TxScope runs a unit of work. If fn returns an error every write issued through
// repos is rolled back, otherwise all of them are committed together.
type TxScope interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// DayBounds returns the [start, end) interval of the UTC calendar day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
