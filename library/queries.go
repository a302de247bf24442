package library

import (
	"context"
	"errors"
	"time"
)

// view runs a read-only unit of work. Failures are reported as OperationErrors
// like the business operations, but are neither logged nor counted.
func (lm *LibraryManager) view(ctx context.Context, op string, fn func(ctx context.Context, repos Repositories) error) error {
	err := lm.scope.Execute(ctx, fn)
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return &OperationError{Op: op, Msg: err.Error(), Err: err}
	}
	return &OperationError{Op: op, Msg: "storage: " + err.Error(), Err: err}
}

// ------------------ Books ------------------

func (lm *LibraryManager) Book(ctx context.Context, id string) (Book, error) {
	var book Book
	err := lm.view(ctx, "get book", func(ctx context.Context, repos Repositories) error {
		var err error
		book, err = getBook(ctx, "get book", repos, id)
		return err
	})
	return book, err
}

func (lm *LibraryManager) Books(ctx context.Context, sort SortKey) ([]Book, error) {
	var books []Book
	err := lm.view(ctx, "list books", func(ctx context.Context, repos Repositories) error {
		var err error
		books, err = repos.Books().FindAll(ctx, sort)
		return err
	})
	return books, err
}

// BooksByTitle lists books whose title contains substr, ignoring case.
func (lm *LibraryManager) BooksByTitle(ctx context.Context, substr string) ([]Book, error) {
	var books []Book
	err := lm.view(ctx, "list books by title", func(ctx context.Context, repos Repositories) error {
		var err error
		books, err = repos.Books().FindByTitle(ctx, substr)
		return err
	})
	return books, err
}

func (lm *LibraryManager) BooksBorrowedBy(ctx context.Context, memberID string) ([]Book, error) {
	var books []Book
	err := lm.view(ctx, "list borrowed books", func(ctx context.Context, repos Repositories) error {
		var err error
		books, err = repos.Books().FindByBorrower(ctx, memberID)
		return err
	})
	return books, err
}

// ------------------ Members ------------------

func (lm *LibraryManager) Member(ctx context.Context, id string) (Member, error) {
	var member Member
	err := lm.view(ctx, "get member", func(ctx context.Context, repos Repositories) error {
		var err error
		member, err = getMember(ctx, "get member", repos, id)
		return err
	})
	return member, err
}

func (lm *LibraryManager) Members(ctx context.Context, sort SortKey) ([]Member, error) {
	var members []Member
	err := lm.view(ctx, "list members", func(ctx context.Context, repos Repositories) error {
		var err error
		members, err = repos.Members().FindAll(ctx, sort)
		return err
	})
	return members, err
}

// ------------------ Loans ------------------

func (lm *LibraryManager) Loan(ctx context.Context, id string) (Loan, error) {
	var loan Loan
	err := lm.view(ctx, "get loan", func(ctx context.Context, repos Repositories) error {
		l, err := repos.Loans().Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return opError("get loan", "loan", id, ErrNotFound, "loan does not exist")
		}
		loan = l
		return err
	})
	return loan, err
}

func (lm *LibraryManager) Loans(ctx context.Context, sort SortKey) ([]Loan, error) {
	var loans []Loan
	err := lm.view(ctx, "list loans", func(ctx context.Context, repos Repositories) error {
		var err error
		loans, err = repos.Loans().FindAll(ctx, sort)
		return err
	})
	return loans, err
}

// OpenLoanForBook returns the loan a book is currently out under, or an
// ErrMissingLoan failure when the book is available.
func (lm *LibraryManager) OpenLoanForBook(ctx context.Context, bookID string) (Loan, error) {
	const op = "find open loan"
	var loan Loan
	err := lm.view(ctx, op, func(ctx context.Context, repos Repositories) error {
		if _, err := getBook(ctx, op, repos, bookID); err != nil {
			return err
		}
		current, onLoan, err := findOpenLoan(ctx, op, repos, bookID)
		if err != nil {
			return err
		}
		if !onLoan {
			return opError(op, "book", bookID, ErrMissingLoan, "book is not on loan")
		}
		loan = current
		return nil
	})
	return loan, err
}

func (lm *LibraryManager) LoansByBook(ctx context.Context, bookID string) ([]Loan, error) {
	var loans []Loan
	err := lm.view(ctx, "list loans by book", func(ctx context.Context, repos Repositories) error {
		var err error
		loans, err = repos.Loans().FindByBook(ctx, bookID)
		return err
	})
	return loans, err
}

func (lm *LibraryManager) LoansByMember(ctx context.Context, memberID string) ([]Loan, error) {
	var loans []Loan
	err := lm.view(ctx, "list loans by member", func(ctx context.Context, repos Repositories) error {
		var err error
		loans, err = repos.Loans().FindByMember(ctx, memberID)
		return err
	})
	return loans, err
}

func (lm *LibraryManager) LoansByLoanDate(ctx context.Context, day time.Time) ([]Loan, error) {
	var loans []Loan
	err := lm.view(ctx, "list loans by loan date", func(ctx context.Context, repos Repositories) error {
		var err error
		loans, err = repos.Loans().FindByLoanDate(ctx, day)
		return err
	})
	return loans, err
}

func (lm *LibraryManager) LoansByReturnDate(ctx context.Context, day time.Time) ([]Loan, error) {
	var loans []Loan
	err := lm.view(ctx, "list loans by return date", func(ctx context.Context, repos Repositories) error {
		var err error
		loans, err = repos.Loans().FindByReturnDate(ctx, day)
		return err
	})
	return loans, err
}

// ------------------ Reservations ------------------

func (lm *LibraryManager) Reservation(ctx context.Context, id string) (Reservation, error) {
	var res Reservation
	err := lm.view(ctx, "get reservation", func(ctx context.Context, repos Repositories) error {
		var err error
		res, err = getReservation(ctx, "get reservation", repos, id)
		return err
	})
	return res, err
}

func (lm *LibraryManager) Reservations(ctx context.Context, sort SortKey) ([]Reservation, error) {
	var all []Reservation
	err := lm.view(ctx, "list reservations", func(ctx context.Context, repos Repositories) error {
		var err error
		all, err = repos.Reservations().FindAll(ctx, sort)
		return err
	})
	return all, err
}

// ReservationsForBook returns the book's queue, first in line first.
func (lm *LibraryManager) ReservationsForBook(ctx context.Context, bookID string) ([]Reservation, error) {
	var queue []Reservation
	err := lm.view(ctx, "list reservations by book", func(ctx context.Context, repos Repositories) error {
		var err error
		queue, err = repos.Reservations().FindByBook(ctx, bookID)
		return err
	})
	return queue, err
}

func (lm *LibraryManager) ReservationsByMember(ctx context.Context, memberID string) ([]Reservation, error) {
	var all []Reservation
	err := lm.view(ctx, "list reservations by member", func(ctx context.Context, repos Repositories) error {
		var err error
		all, err = repos.Reservations().FindByMember(ctx, memberID)
		return err
	})
	return all, err
}
