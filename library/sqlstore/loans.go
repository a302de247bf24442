package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"

	"bibliotheque/library"
)

const tableLoans = "loans"

var loanColumns = []interface{}{"id", "book_id", "member_id", "loaned_at", "returned_at"}

var loanSortColumns = map[library.SortKey]string{
	library.SortByID:       "id",
	library.SortByLoaned:   "loaned_at",
	library.SortByReturned: "returned_at",
}

type loanRow struct {
	ID         string       `db:"id"`
	BookID     string       `db:"book_id"`
	MemberID   string       `db:"member_id"`
	LoanedAt   time.Time    `db:"loaned_at"`
	ReturnedAt sql.NullTime `db:"returned_at"`
}

func (r loanRow) toLoan() library.Loan {
	return library.Loan{
		ID:         r.ID,
		BookID:     r.BookID,
		MemberID:   r.MemberID,
		LoanedAt:   r.LoanedAt.UTC(),
		ReturnedAt: fromNullTime(r.ReturnedAt),
	}
}

type loanRepository struct{ u *unit }

func (r loanRepository) selectLoans() *goqu.SelectDataset {
	return r.u.dialect.From(tableLoans).Select(loanColumns...)
}

func (r loanRepository) Get(ctx context.Context, id string) (library.Loan, error) {
	var row loanRow
	if err := r.u.get(ctx, &row, r.selectLoans().Where(goqu.C("id").Eq(id))); err != nil {
		return library.Loan{}, err
	}
	return row.toLoan(), nil
}

func (r loanRepository) Add(ctx context.Context, l library.Loan) error {
	_, err := r.u.exec(ctx, r.u.dialect.Insert(tableLoans).Rows(goqu.Record{
		"id":          l.ID,
		"book_id":     l.BookID,
		"member_id":   l.MemberID,
		"loaned_at":   l.LoanedAt.UTC(),
		"returned_at": utc(l.ReturnedAt),
	}).Prepared(true))
	return err
}

func (r loanRepository) Update(ctx context.Context, l library.Loan) error {
	return r.u.execOne(ctx, r.u.dialect.Update(tableLoans).
		Set(goqu.Record{
			"book_id":     l.BookID,
			"member_id":   l.MemberID,
			"loaned_at":   l.LoanedAt.UTC(),
			"returned_at": utc(l.ReturnedAt),
		}).
		Where(goqu.C("id").Eq(l.ID)).
		Prepared(true))
}

func (r loanRepository) Delete(ctx context.Context, id string) error {
	return r.u.execOne(ctx, r.u.dialect.Delete(tableLoans).Where(goqu.C("id").Eq(id)).Prepared(true))
}

func (r loanRepository) FindAll(ctx context.Context, key library.SortKey) ([]library.Loan, error) {
	order, err := orderBy("loans", key, loanSortColumns)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, r.selectLoans().Order(order...))
}

func (r loanRepository) FindByBook(ctx context.Context, bookID string) ([]library.Loan, error) {
	return r.find(ctx, r.byLoanDate(r.selectLoans().Where(goqu.C("book_id").Eq(bookID))))
}

func (r loanRepository) FindOpenByBook(ctx context.Context, bookID string) (library.Loan, error) {
	var row loanRow
	err := r.u.get(ctx, &row, r.selectLoans().Where(
		goqu.C("book_id").Eq(bookID),
		goqu.C("returned_at").IsNull(),
	))
	if err != nil {
		return library.Loan{}, err
	}
	return row.toLoan(), nil
}

func (r loanRepository) FindByMember(ctx context.Context, memberID string) ([]library.Loan, error) {
	return r.find(ctx, r.byLoanDate(r.selectLoans().Where(goqu.C("member_id").Eq(memberID))))
}

func (r loanRepository) FindByLoanDate(ctx context.Context, day time.Time) ([]library.Loan, error) {
	start, end := library.DayBounds(day)
	return r.find(ctx, r.byLoanDate(r.selectLoans().Where(
		goqu.C("loaned_at").Gte(start),
		goqu.C("loaned_at").Lt(end),
	)))
}

func (r loanRepository) FindByReturnDate(ctx context.Context, day time.Time) ([]library.Loan, error) {
	start, end := library.DayBounds(day)
	return r.find(ctx, r.byLoanDate(r.selectLoans().Where(
		goqu.C("returned_at").Gte(start),
		goqu.C("returned_at").Lt(end),
	)))
}

func (r loanRepository) byLoanDate(ds *goqu.SelectDataset) *goqu.SelectDataset {
	return ds.Order(goqu.I("loaned_at").Asc(), goqu.I("id").Asc())
}

func (r loanRepository) find(ctx context.Context, ds *goqu.SelectDataset) ([]library.Loan, error) {
	var rows []loanRow
	if err := r.u.selectAll(ctx, &rows, ds); err != nil {
		return nil, err
	}
	loans := make([]library.Loan, 0, len(rows))
	for _, row := range rows {
		loans = append(loans, row.toLoan())
	}
	return loans, nil
}
