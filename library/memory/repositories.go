package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"bibliotheque/library"
)

// ------------------ Books ------------------

type bookRepository struct{ u *unit }

func (r bookRepository) Get(_ context.Context, id string) (library.Book, error) {
	b, ok := r.u.state.books[id]
	if !ok {
		return library.Book{}, library.ErrNotFound
	}
	return b, nil
}

func (r bookRepository) Add(_ context.Context, b library.Book) error {
	if _, exists := r.u.state.books[b.ID]; exists {
		return library.ErrAlreadyExists
	}
	r.u.state.books[b.ID] = b
	return nil
}

func (r bookRepository) Update(_ context.Context, b library.Book) error {
	if _, ok := r.u.state.books[b.ID]; !ok {
		return library.ErrNotFound
	}
	r.u.state.books[b.ID] = b
	return nil
}

func (r bookRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.u.state.books[id]; !ok {
		return library.ErrNotFound
	}
	delete(r.u.state.books, id)
	return nil
}

func (r bookRepository) FindAll(_ context.Context, key library.SortKey) ([]library.Book, error) {
	less, err := bookOrder(key)
	if err != nil {
		return nil, err
	}
	return r.filter(func(library.Book) bool { return true }, less), nil
}

func (r bookRepository) FindByTitle(_ context.Context, substr string) ([]library.Book, error) {
	needle := strings.ToLower(substr)
	return r.filter(func(b library.Book) bool {
		return strings.Contains(strings.ToLower(b.Title), needle)
	}, byTitle), nil
}

func (r bookRepository) FindByBorrower(_ context.Context, memberID string) ([]library.Book, error) {
	return r.filter(func(b library.Book) bool { return b.BorrowerID == memberID }, byBookID), nil
}

func (r bookRepository) filter(keep func(library.Book) bool, less func(a, b library.Book) bool) []library.Book {
	result := make([]library.Book, 0, len(r.u.state.books))
	for _, b := range r.u.state.books {
		if keep(b) {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

func byBookID(a, b library.Book) bool { return a.ID < b.ID }

func byTitle(a, b library.Book) bool {
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.ID < b.ID
}

func bookOrder(key library.SortKey) (func(a, b library.Book) bool, error) {
	switch key {
	case "", library.SortByID:
		return byBookID, nil
	case library.SortByTitle:
		return byTitle, nil
	case library.SortByAuthor:
		return func(a, b library.Book) bool {
			if a.Author != b.Author {
				return a.Author < b.Author
			}
			return a.ID < b.ID
		}, nil
	case library.SortByAcquired:
		return func(a, b library.Book) bool { return earlier(a.AcquiredAt, b.AcquiredAt, a.ID, b.ID) }, nil
	default:
		return nil, unknownSortKey("books", key)
	}
}

// ------------------ Members ------------------

type memberRepository struct{ u *unit }

func (r memberRepository) Get(_ context.Context, id string) (library.Member, error) {
	m, ok := r.u.state.members[id]
	if !ok {
		return library.Member{}, library.ErrNotFound
	}
	return m, nil
}

func (r memberRepository) Add(_ context.Context, m library.Member) error {
	if _, exists := r.u.state.members[m.ID]; exists {
		return library.ErrAlreadyExists
	}
	r.u.state.members[m.ID] = m
	return nil
}

func (r memberRepository) Update(_ context.Context, m library.Member) error {
	if _, ok := r.u.state.members[m.ID]; !ok {
		return library.ErrNotFound
	}
	r.u.state.members[m.ID] = m
	return nil
}

func (r memberRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.u.state.members[id]; !ok {
		return library.ErrNotFound
	}
	delete(r.u.state.members, id)
	return nil
}

func (r memberRepository) FindAll(_ context.Context, key library.SortKey) ([]library.Member, error) {
	var less func(a, b library.Member) bool
	switch key {
	case "", library.SortByID:
		less = func(a, b library.Member) bool { return a.ID < b.ID }
	case library.SortByName:
		less = func(a, b library.Member) bool {
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		}
	default:
		return nil, unknownSortKey("members", key)
	}

	result := make([]library.Member, 0, len(r.u.state.members))
	for _, m := range r.u.state.members {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result, nil
}

// ------------------ Loans ------------------

type loanRepository struct{ u *unit }

func (r loanRepository) Get(_ context.Context, id string) (library.Loan, error) {
	l, ok := r.u.state.loans[id]
	if !ok {
		return library.Loan{}, library.ErrNotFound
	}
	return l, nil
}

func (r loanRepository) Add(_ context.Context, l library.Loan) error {
	if _, exists := r.u.state.loans[l.ID]; exists {
		return library.ErrAlreadyExists
	}
	if l.Open() {
		for _, other := range r.u.state.loans {
			if other.BookID == l.BookID && other.Open() {
				return fmt.Errorf("%w: book %s already has open loan %s", library.ErrAlreadyExists, l.BookID, other.ID)
			}
		}
	}
	r.u.state.loans[l.ID] = l
	return nil
}

func (r loanRepository) Update(_ context.Context, l library.Loan) error {
	if _, ok := r.u.state.loans[l.ID]; !ok {
		return library.ErrNotFound
	}
	r.u.state.loans[l.ID] = l
	return nil
}

func (r loanRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.u.state.loans[id]; !ok {
		return library.ErrNotFound
	}
	delete(r.u.state.loans, id)
	return nil
}

func (r loanRepository) FindAll(_ context.Context, key library.SortKey) ([]library.Loan, error) {
	var less func(a, b library.Loan) bool
	switch key {
	case "", library.SortByID:
		less = func(a, b library.Loan) bool { return a.ID < b.ID }
	case library.SortByLoaned:
		less = byLoanDate
	case library.SortByReturned:
		less = func(a, b library.Loan) bool { return earlier(a.ReturnedAt, b.ReturnedAt, a.ID, b.ID) }
	default:
		return nil, unknownSortKey("loans", key)
	}
	return r.filter(func(library.Loan) bool { return true }, less), nil
}

func (r loanRepository) FindByBook(_ context.Context, bookID string) ([]library.Loan, error) {
	return r.filter(func(l library.Loan) bool { return l.BookID == bookID }, byLoanDate), nil
}

func (r loanRepository) FindOpenByBook(_ context.Context, bookID string) (library.Loan, error) {
	for _, l := range r.u.state.loans {
		if l.BookID == bookID && l.Open() {
			return l, nil
		}
	}
	return library.Loan{}, library.ErrNotFound
}

func (r loanRepository) FindByMember(_ context.Context, memberID string) ([]library.Loan, error) {
	return r.filter(func(l library.Loan) bool { return l.MemberID == memberID }, byLoanDate), nil
}

func (r loanRepository) FindByLoanDate(_ context.Context, day time.Time) ([]library.Loan, error) {
	start, end := library.DayBounds(day)
	return r.filter(func(l library.Loan) bool { return within(l.LoanedAt, start, end) }, byLoanDate), nil
}

func (r loanRepository) FindByReturnDate(_ context.Context, day time.Time) ([]library.Loan, error) {
	start, end := library.DayBounds(day)
	return r.filter(func(l library.Loan) bool {
		return !l.Open() && within(l.ReturnedAt, start, end)
	}, byLoanDate), nil
}

func (r loanRepository) filter(keep func(library.Loan) bool, less func(a, b library.Loan) bool) []library.Loan {
	result := make([]library.Loan, 0)
	for _, l := range r.u.state.loans {
		if keep(l) {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

func byLoanDate(a, b library.Loan) bool { return earlier(a.LoanedAt, b.LoanedAt, a.ID, b.ID) }

// ------------------ Reservations ------------------

type reservationRepository struct{ u *unit }

func (r reservationRepository) Get(_ context.Context, id string) (library.Reservation, error) {
	res, ok := r.u.state.reservations[id]
	if !ok {
		return library.Reservation{}, library.ErrNotFound
	}
	return res, nil
}

func (r reservationRepository) Add(_ context.Context, res library.Reservation) error {
	if _, exists := r.u.state.reservations[res.ID]; exists {
		return library.ErrAlreadyExists
	}
	for _, other := range r.u.state.reservations {
		if other.BookID == res.BookID && other.MemberID == res.MemberID {
			return fmt.Errorf("%w: member %s already reserved book %s", library.ErrAlreadyExists, res.MemberID, res.BookID)
		}
	}
	r.u.state.reservations[res.ID] = res
	return nil
}

func (r reservationRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.u.state.reservations[id]; !ok {
		return library.ErrNotFound
	}
	delete(r.u.state.reservations, id)
	return nil
}

func (r reservationRepository) FindAll(_ context.Context, key library.SortKey) ([]library.Reservation, error) {
	var less func(a, b library.Reservation) bool
	switch key {
	case "", library.SortByID:
		less = func(a, b library.Reservation) bool { return a.ID < b.ID }
	case library.SortByReserved:
		less = byReservationDate
	default:
		return nil, unknownSortKey("reservations", key)
	}
	return r.filter(func(library.Reservation) bool { return true }, less), nil
}

func (r reservationRepository) FindByBook(_ context.Context, bookID string) ([]library.Reservation, error) {
	return r.filter(func(res library.Reservation) bool { return res.BookID == bookID }, byReservationDate), nil
}

func (r reservationRepository) FindByMember(_ context.Context, memberID string) ([]library.Reservation, error) {
	return r.filter(func(res library.Reservation) bool { return res.MemberID == memberID }, byReservationDate), nil
}

func (r reservationRepository) filter(keep func(library.Reservation) bool, less func(a, b library.Reservation) bool) []library.Reservation {
	result := make([]library.Reservation, 0)
	for _, res := range r.u.state.reservations {
		if keep(res) {
			result = append(result, res)
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

func byReservationDate(a, b library.Reservation) bool {
	return earlier(a.ReservedAt, b.ReservedAt, a.ID, b.ID)
}

// ------------------ Helpers ------------------

// earlier orders by time, breaking ties by id.
func earlier(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return idA < idB
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func unknownSortKey(entity string, key library.SortKey) error {
	return fmt.Errorf("%w: cannot sort %s by %q", library.ErrValidation, entity, key)
}
