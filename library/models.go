package library

import "time"

// Book is a copy held by the library. A book is on loan iff BorrowerID is set.
type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	AcquiredAt time.Time `json:"acquired_at"`
	BorrowerID string    `json:"borrower_id,omitempty"`
	LoanedAt   time.Time `json:"loaned_at,omitempty"`
}

// OnLoan reports whether the book is currently lent out.
func (b Book) OnLoan() bool { return b.BorrowerID != "" }

// Member represents a registered library member.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	LoanLimit int    `json:"loan_limit"`
	LoanCount int    `json:"loan_count"`
}

// CanBorrow reports whether the member is below their loan limit.
func (m Member) CanBorrow() bool { return m.LoanCount < m.LoanLimit }

// Loan records a book lent to a member. A zero ReturnedAt means the loan is open.
type Loan struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	MemberID   string    `json:"member_id"`
	LoanedAt   time.Time `json:"loaned_at"`
	ReturnedAt time.Time `json:"returned_at,omitempty"`
}

// Open reports whether the book has not been returned yet.
func (l Loan) Open() bool { return l.ReturnedAt.IsZero() }

// Reservation is a member's standing place in a book's queue.
type Reservation struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	MemberID   string    `json:"member_id"`
	ReservedAt time.Time `json:"reserved_at"`
}

// BookDraft carries the caller-supplied fields of a new book.
type BookDraft struct {
	ID         string
	Title      string
	Author     string
	AcquiredAt time.Time
}

// MemberDraft carries the caller-supplied fields of a new member.
type MemberDraft struct {
	ID        string
	Name      string
	Phone     string
	LoanLimit int
}

// ReservationDraft carries the caller-supplied fields of a new reservation.
// An empty ID gets a generated one and a zero ReservedAt means "now".
type ReservationDraft struct {
	ID         string
	BookID     string
	MemberID   string
	ReservedAt time.Time
}

// SortKey selects the ordering of FindAll results.
type SortKey string

const (
	SortByID       SortKey = "id"
	SortByTitle    SortKey = "title"
	SortByAuthor   SortKey = "author"
	SortByAcquired SortKey = "acquired"
	SortByName     SortKey = "name"
	SortByLoaned   SortKey = "loaned"
	SortByReturned SortKey = "returned"
	SortByReserved SortKey = "reserved"
)
