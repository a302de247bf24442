package library

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// LibraryManager is the transaction rule engine. Every business operation runs as
// one unit of work of the injected TxScope: reads and validation first, writes only
// when every rule holds, and a rollback of all writes on any failure.
type LibraryManager struct {
	scope   TxScope
	logger  *log.Entry
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

// Option customises a LibraryManager.
type Option func(*LibraryManager)

// WithLogger sets the logger used for operation outcomes.
func WithLogger(logger *log.Entry) Option {
	return func(lm *LibraryManager) {
		if logger != nil {
			lm.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(lm *LibraryManager) { lm.metrics = m }
}

// WithClock replaces time.Now, used for default reservation and acquisition times.
func WithClock(now func() time.Time) Option {
	return func(lm *LibraryManager) {
		if now != nil {
			lm.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator used for loans and reservations.
func WithIDGenerator(newID func() string) Option {
	return func(lm *LibraryManager) {
		if newID != nil {
			lm.newID = newID
		}
	}
}

// NewLibraryManager builds the engine on top of scope.
func NewLibraryManager(scope TxScope, opts ...Option) *LibraryManager {
	lm := &LibraryManager{
		scope:  scope,
		logger: log.New().WithField("component", "library"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

// ------------------ Book lifecycle ------------------

// Acquire adds a new book to the collection.
func (lm *LibraryManager) Acquire(ctx context.Context, draft BookDraft) (Book, error) {
	const op = "acquire"
	if err := requireID(op, "book", draft.ID); err != nil {
		return Book{}, err
	}
	if strings.TrimSpace(draft.Title) == "" {
		return Book{}, opError(op, "book", draft.ID, ErrValidation, "title is required")
	}

	book := Book{
		ID:         draft.ID,
		Title:      draft.Title,
		Author:     draft.Author,
		AcquiredAt: draft.AcquiredAt,
	}
	if book.AcquiredAt.IsZero() {
		book.AcquiredAt = lm.now()
	}

	err := lm.run(ctx, op, log.Fields{"book_id": draft.ID}, func(ctx context.Context, repos Repositories) error {
		if _, err := repos.Books().Get(ctx, draft.ID); err == nil {
			return opError(op, "book", draft.ID, ErrAlreadyExists, "book already exists")
		} else if !errors.Is(err, ErrNotFound) {
			return storageError(op, "book", draft.ID, err)
		}
		if err := repos.Books().Add(ctx, book); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return opError(op, "book", draft.ID, ErrAlreadyExists, "book already exists")
			}
			return storageError(op, "book", draft.ID, err)
		}
		return nil
	})
	if err != nil {
		return Book{}, err
	}
	return book, nil
}

// Sell removes a book that is neither on loan nor reserved.
func (lm *LibraryManager) Sell(ctx context.Context, bookID string) error {
	const op = "sell"
	if err := requireID(op, "book", bookID); err != nil {
		return err
	}

	return lm.run(ctx, op, log.Fields{"book_id": bookID}, func(ctx context.Context, repos Repositories) error {
		book, err := getBook(ctx, op, repos, bookID)
		if err != nil {
			return err
		}
		if err := ensureAvailable(ctx, op, repos, book); err != nil {
			return err
		}
		if err := ensureNotReserved(ctx, op, repos, bookID); err != nil {
			return err
		}
		if err := repos.Books().Delete(ctx, bookID); err != nil {
			return storageError(op, "book", bookID, err)
		}
		return nil
	})
}

// ------------------ Circulation ------------------

// Lend opens a loan of bookID to memberID at the given time.
func (lm *LibraryManager) Lend(ctx context.Context, bookID, memberID string, at time.Time) (Loan, error) {
	const op = "lend"
	if err := requireID(op, "book", bookID); err != nil {
		return Loan{}, err
	}
	if err := requireID(op, "member", memberID); err != nil {
		return Loan{}, err
	}
	if at.IsZero() {
		return Loan{}, opError(op, "book", bookID, ErrValidation, "loan date is required")
	}

	var loan Loan
	err := lm.run(ctx, op, log.Fields{"book_id": bookID, "member_id": memberID}, func(ctx context.Context, repos Repositories) error {
		book, err := getBook(ctx, op, repos, bookID)
		if err != nil {
			return err
		}
		if err := ensureAvailable(ctx, op, repos, book); err != nil {
			return err
		}
		member, err := getMember(ctx, op, repos, memberID)
		if err != nil {
			return err
		}
		if !member.CanBorrow() {
			return opError(op, "member", memberID, ErrInvalidLoanLimit, "loan limit of %d reached", member.LoanLimit)
		}
		// Any standing reservation blocks a direct loan, whoever placed it.
		if err := ensureNotReserved(ctx, op, repos, bookID); err != nil {
			return err
		}

		loan = Loan{ID: lm.newID(), BookID: bookID, MemberID: memberID, LoanedAt: at}
		return openLoan(ctx, op, repos, book, member, loan)
	})
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// Renew moves the start of an open loan to at.
func (lm *LibraryManager) Renew(ctx context.Context, loanID string, at time.Time) error {
	const op = "renew"
	if err := requireID(op, "loan", loanID); err != nil {
		return err
	}
	if at.IsZero() {
		return opError(op, "loan", loanID, ErrValidation, "renewal date is required")
	}

	return lm.run(ctx, op, log.Fields{"loan_id": loanID}, func(ctx context.Context, repos Repositories) error {
		loan, err := getCurrentLoan(ctx, op, repos, loanID)
		if err != nil {
			return err
		}
		if err := ensureNotReserved(ctx, op, repos, loan.BookID); err != nil {
			return err
		}
		if at.Before(loan.LoanedAt) {
			return opError(op, "loan", loanID, ErrValidation,
				"renewal date %s precedes loan date %s", formatDate(at), formatDate(loan.LoanedAt))
		}
		book, err := getBook(ctx, op, repos, loan.BookID)
		if err != nil {
			return err
		}

		loan.LoanedAt = at
		if err := repos.Loans().Update(ctx, loan); err != nil {
			return storageError(op, "loan", loan.ID, err)
		}
		book.LoanedAt = at
		if err := repos.Books().Update(ctx, book); err != nil {
			return storageError(op, "book", book.ID, err)
		}
		return nil
	})
}

// Return closes an open loan and frees the member's loan slot.
func (lm *LibraryManager) Return(ctx context.Context, loanID string, at time.Time) error {
	const op = "return"
	if err := requireID(op, "loan", loanID); err != nil {
		return err
	}
	if at.IsZero() {
		return opError(op, "loan", loanID, ErrValidation, "return date is required")
	}

	return lm.run(ctx, op, log.Fields{"loan_id": loanID}, func(ctx context.Context, repos Repositories) error {
		loan, err := getCurrentLoan(ctx, op, repos, loanID)
		if err != nil {
			return err
		}
		if at.Before(loan.LoanedAt) {
			return opError(op, "loan", loanID, ErrValidation,
				"return date %s precedes loan date %s", formatDate(at), formatDate(loan.LoanedAt))
		}
		book, err := getBook(ctx, op, repos, loan.BookID)
		if err != nil {
			return err
		}
		member, err := getMember(ctx, op, repos, loan.MemberID)
		if err != nil {
			return err
		}
		if member.LoanCount == 0 {
			return opError(op, "member", member.ID, ErrMissingLoan, "member has no loan to return")
		}

		loan.ReturnedAt = at
		if err := repos.Loans().Update(ctx, loan); err != nil {
			return storageError(op, "loan", loan.ID, err)
		}
		book.BorrowerID = ""
		book.LoanedAt = time.Time{}
		if err := repos.Books().Update(ctx, book); err != nil {
			return storageError(op, "book", book.ID, err)
		}
		member.LoanCount--
		if err := repos.Members().Update(ctx, member); err != nil {
			return storageError(op, "member", member.ID, err)
		}
		return nil
	})
}

// ------------------ Member lifecycle ------------------

// RegisterMember creates a member with no loans.
func (lm *LibraryManager) RegisterMember(ctx context.Context, draft MemberDraft) (Member, error) {
	const op = "register"
	if err := requireID(op, "member", draft.ID); err != nil {
		return Member{}, err
	}
	if strings.TrimSpace(draft.Name) == "" {
		return Member{}, opError(op, "member", draft.ID, ErrValidation, "name is required")
	}
	if draft.LoanLimit <= 0 {
		return Member{}, opError(op, "member", draft.ID, ErrValidation, "loan limit must be positive, got %d", draft.LoanLimit)
	}

	member := Member{ID: draft.ID, Name: draft.Name, Phone: draft.Phone, LoanLimit: draft.LoanLimit}
	err := lm.run(ctx, op, log.Fields{"member_id": draft.ID}, func(ctx context.Context, repos Repositories) error {
		if _, err := repos.Members().Get(ctx, draft.ID); err == nil {
			return opError(op, "member", draft.ID, ErrAlreadyExists, "member already exists")
		} else if !errors.Is(err, ErrNotFound) {
			return storageError(op, "member", draft.ID, err)
		}
		if err := repos.Members().Add(ctx, member); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return opError(op, "member", draft.ID, ErrAlreadyExists, "member already exists")
			}
			return storageError(op, "member", draft.ID, err)
		}
		return nil
	})
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

// UnregisterMember deletes a member without loans or reservations.
func (lm *LibraryManager) UnregisterMember(ctx context.Context, memberID string) error {
	const op = "unregister"
	if err := requireID(op, "member", memberID); err != nil {
		return err
	}

	return lm.run(ctx, op, log.Fields{"member_id": memberID}, func(ctx context.Context, repos Repositories) error {
		member, err := getMember(ctx, op, repos, memberID)
		if err != nil {
			return err
		}
		if member.LoanCount > 0 {
			return opError(op, "member", memberID, ErrExistingLoan, "member still has %d loan(s)", member.LoanCount)
		}
		reservations, err := repos.Reservations().FindByMember(ctx, memberID)
		if err != nil {
			return storageError(op, "member", memberID, err)
		}
		if len(reservations) > 0 {
			e := opError(op, "member", memberID, ErrExistingReservation,
				"member holds reservation %s", reservations[0].ID)
			e.Ref = reservations[0].ID
			return e
		}
		if err := repos.Members().Delete(ctx, memberID); err != nil {
			return storageError(op, "member", memberID, err)
		}
		return nil
	})
}

// ------------------ Reservations ------------------

// Reserve queues a member for a book currently lent to someone else.
func (lm *LibraryManager) Reserve(ctx context.Context, draft ReservationDraft) (Reservation, error) {
	const op = "reserve"
	if err := requireID(op, "book", draft.BookID); err != nil {
		return Reservation{}, err
	}
	if err := requireID(op, "member", draft.MemberID); err != nil {
		return Reservation{}, err
	}

	res := Reservation{ID: draft.ID, BookID: draft.BookID, MemberID: draft.MemberID, ReservedAt: draft.ReservedAt}
	if res.ID == "" {
		res.ID = lm.newID()
	}
	if res.ReservedAt.IsZero() {
		res.ReservedAt = lm.now()
	}

	err := lm.run(ctx, op, log.Fields{"reservation_id": res.ID, "book_id": res.BookID, "member_id": res.MemberID}, func(ctx context.Context, repos Repositories) error {
		if _, err := repos.Reservations().Get(ctx, res.ID); err == nil {
			return opError(op, "reservation", res.ID, ErrAlreadyExists, "reservation already exists")
		} else if !errors.Is(err, ErrNotFound) {
			return storageError(op, "reservation", res.ID, err)
		}
		if _, err := getMember(ctx, op, repos, res.MemberID); err != nil {
			return err
		}
		if _, err := getBook(ctx, op, repos, res.BookID); err != nil {
			return err
		}

		current, onLoan, err := findOpenLoan(ctx, op, repos, res.BookID)
		if err != nil {
			return err
		}
		if !onLoan {
			return opError(op, "book", res.BookID, ErrMissingLoan, "book is not on loan, lend it instead")
		}
		if current.MemberID == res.MemberID {
			return opError(op, "book", res.BookID, ErrExistingLoan, "book is already on loan to member %s", res.MemberID)
		}

		queue, err := repos.Reservations().FindByBook(ctx, res.BookID)
		if err != nil {
			return storageError(op, "book", res.BookID, err)
		}
		for _, other := range queue {
			if other.MemberID == res.MemberID {
				e := opError(op, "member", res.MemberID, ErrExistingReservation,
					"member already reserved this book (reservation %s)", other.ID)
				e.Ref = other.ID
				return e
			}
		}
		if res.ReservedAt.Before(current.LoanedAt) {
			return opError(op, "reservation", res.ID, ErrValidation,
				"reservation date %s precedes loan date %s", formatDate(res.ReservedAt), formatDate(current.LoanedAt))
		}

		if err := repos.Reservations().Add(ctx, res); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return opError(op, "reservation", res.ID, ErrAlreadyExists, "reservation already exists")
			}
			return storageError(op, "reservation", res.ID, err)
		}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// ClaimReservation turns the first reservation of a returned book into a loan.
func (lm *LibraryManager) ClaimReservation(ctx context.Context, reservationID string, at time.Time) (Loan, error) {
	const op = "claim"
	if err := requireID(op, "reservation", reservationID); err != nil {
		return Loan{}, err
	}
	if at.IsZero() {
		return Loan{}, opError(op, "reservation", reservationID, ErrValidation, "loan date is required")
	}

	var loan Loan
	err := lm.run(ctx, op, log.Fields{"reservation_id": reservationID}, func(ctx context.Context, repos Repositories) error {
		res, err := getReservation(ctx, op, repos, reservationID)
		if err != nil {
			return err
		}
		book, err := getBook(ctx, op, repos, res.BookID)
		if err != nil {
			return err
		}

		queue, err := repos.Reservations().FindByBook(ctx, res.BookID)
		if err != nil {
			return storageError(op, "book", res.BookID, err)
		}
		if len(queue) == 0 || queue[0].ID != res.ID {
			e := opError(op, "reservation", res.ID, ErrExistingReservation, "not first in line")
			if len(queue) > 0 {
				e.Ref = queue[0].ID
				e.Msg = "not first in line, reservation " + queue[0].ID + " must be claimed first"
			}
			return e
		}

		if err := ensureAvailable(ctx, op, repos, book); err != nil {
			return err
		}
		member, err := getMember(ctx, op, repos, res.MemberID)
		if err != nil {
			return err
		}
		if !member.CanBorrow() {
			return opError(op, "member", member.ID, ErrInvalidLoanLimit, "loan limit of %d reached", member.LoanLimit)
		}
		if at.Before(res.ReservedAt) {
			return opError(op, "reservation", res.ID, ErrValidation,
				"loan date %s precedes reservation date %s", formatDate(at), formatDate(res.ReservedAt))
		}

		loan = Loan{ID: lm.newID(), BookID: res.BookID, MemberID: res.MemberID, LoanedAt: at}
		if err := openLoan(ctx, op, repos, book, member, loan); err != nil {
			return err
		}
		if err := repos.Reservations().Delete(ctx, res.ID); err != nil {
			return storageError(op, "reservation", res.ID, err)
		}
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// CancelReservation drops a standing reservation.
func (lm *LibraryManager) CancelReservation(ctx context.Context, reservationID string) error {
	const op = "cancel"
	if err := requireID(op, "reservation", reservationID); err != nil {
		return err
	}

	return lm.run(ctx, op, log.Fields{"reservation_id": reservationID}, func(ctx context.Context, repos Repositories) error {
		if _, err := getReservation(ctx, op, repos, reservationID); err != nil {
			return err
		}
		if err := repos.Reservations().Delete(ctx, reservationID); err != nil {
			return storageError(op, "reservation", reservationID, err)
		}
		return nil
	})
}

// ------------------ Unit of work plumbing ------------------

func (lm *LibraryManager) run(ctx context.Context, op string, fields log.Fields, fn func(ctx context.Context, repos Repositories) error) error {
	start := time.Now()
	err := lm.scope.Execute(ctx, fn)
	if err != nil {
		var opErr *OperationError
		if !errors.As(err, &opErr) {
			err = &OperationError{Op: op, Msg: "transaction failed: " + err.Error(), Err: err}
		}
	}
	lm.metrics.Observe(op, err, time.Since(start))

	entry := lm.logger.WithField("op", op).WithFields(fields)
	switch {
	case err == nil:
		entry.Debug("operation committed")
	case IsRuleViolation(err):
		entry.WithError(err).Info("operation rejected")
	default:
		entry.WithError(err).Warn("operation rolled back")
	}
	return err
}

// openLoan records loan and marks book and member accordingly.
func openLoan(ctx context.Context, op string, repos Repositories, book Book, member Member, loan Loan) error {
	if err := repos.Loans().Add(ctx, loan); err != nil {
		return storageError(op, "loan", loan.ID, err)
	}
	book.BorrowerID = member.ID
	book.LoanedAt = loan.LoanedAt
	if err := repos.Books().Update(ctx, book); err != nil {
		return storageError(op, "book", book.ID, err)
	}
	member.LoanCount++
	if err := repos.Members().Update(ctx, member); err != nil {
		return storageError(op, "member", member.ID, err)
	}
	return nil
}

func ensureAvailable(ctx context.Context, op string, repos Repositories, book Book) error {
	current, onLoan, err := findOpenLoan(ctx, op, repos, book.ID)
	if err != nil {
		return err
	}
	switch {
	case onLoan:
		return opError(op, "book", book.ID, ErrExistingLoan, "book is on loan to member %s", current.MemberID)
	case book.OnLoan():
		return opError(op, "book", book.ID, ErrExistingLoan, "book is on loan to member %s", book.BorrowerID)
	}
	return nil
}

func ensureNotReserved(ctx context.Context, op string, repos Repositories, bookID string) error {
	queue, err := repos.Reservations().FindByBook(ctx, bookID)
	if err != nil {
		return storageError(op, "book", bookID, err)
	}
	if len(queue) > 0 {
		e := opError(op, "book", bookID, ErrExistingReservation,
			"book is reserved by member %s (reservation %s)", queue[0].MemberID, queue[0].ID)
		e.Ref = queue[0].ID
		return e
	}
	return nil
}

// getCurrentLoan loads a loan and checks that it is the book's open loan.
func getCurrentLoan(ctx context.Context, op string, repos Repositories, loanID string) (Loan, error) {
	loan, err := repos.Loans().Get(ctx, loanID)
	if errors.Is(err, ErrNotFound) {
		return Loan{}, opError(op, "loan", loanID, ErrMissingLoan, "loan does not exist")
	}
	if err != nil {
		return Loan{}, storageError(op, "loan", loanID, err)
	}
	if !loan.Open() {
		return Loan{}, opError(op, "loan", loanID, ErrMissingLoan, "book %s was already returned", loan.BookID)
	}
	current, onLoan, err := findOpenLoan(ctx, op, repos, loan.BookID)
	if err != nil {
		return Loan{}, err
	}
	if !onLoan || current.ID != loan.ID || current.MemberID != loan.MemberID {
		return Loan{}, opError(op, "loan", loanID, ErrMissingLoan, "book %s is not on loan under this loan", loan.BookID)
	}
	return loan, nil
}

func findOpenLoan(ctx context.Context, op string, repos Repositories, bookID string) (Loan, bool, error) {
	loan, err := repos.Loans().FindOpenByBook(ctx, bookID)
	if errors.Is(err, ErrNotFound) {
		return Loan{}, false, nil
	}
	if err != nil {
		return Loan{}, false, storageError(op, "book", bookID, err)
	}
	return loan, true, nil
}

func getBook(ctx context.Context, op string, repos Repositories, id string) (Book, error) {
	book, err := repos.Books().Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Book{}, opError(op, "book", id, ErrNotFound, "book does not exist")
	}
	if err != nil {
		return Book{}, storageError(op, "book", id, err)
	}
	return book, nil
}

func getMember(ctx context.Context, op string, repos Repositories, id string) (Member, error) {
	member, err := repos.Members().Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Member{}, opError(op, "member", id, ErrNotFound, "member does not exist")
	}
	if err != nil {
		return Member{}, storageError(op, "member", id, err)
	}
	return member, nil
}

func getReservation(ctx context.Context, op string, repos Repositories, id string) (Reservation, error) {
	res, err := repos.Reservations().Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Reservation{}, opError(op, "reservation", id, ErrNotFound, "reservation does not exist")
	}
	if err != nil {
		return Reservation{}, storageError(op, "reservation", id, err)
	}
	return res, nil
}

func requireID(op, entity, id string) error {
	if strings.TrimSpace(id) == "" {
		return opError(op, entity, "", ErrValidation, "%s id is required", entity)
	}
	return nil
}

func storageError(op, entity, id string, err error) error {
	return &OperationError{Op: op, Entity: entity, ID: id, Msg: "storage: " + err.Error(), Err: err}
}

func formatDate(t time.Time) string { return t.UTC().Format("2006-01-02") }
