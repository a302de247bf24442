package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"bibliotheque/library"
)

// unit hands out repositories bound to one transaction.
type unit struct {
	tx      *sqlx.Tx
	dialect goqu.DialectWrapper
}

func (u *unit) Books() library.BookRepository               { return bookRepository{u} }
func (u *unit) Members() library.MemberRepository           { return memberRepository{u} }
func (u *unit) Loans() library.LoanRepository               { return loanRepository{u} }
func (u *unit) Reservations() library.ReservationRepository { return reservationRepository{u} }

var _ library.Repositories = (*unit)(nil)

type statement interface {
	ToSQL() (string, []interface{}, error)
}

// get scans a single row into dest, mapping "no rows" to library.ErrNotFound.
func (u *unit) get(ctx context.Context, dest interface{}, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	if err := u.tx.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.ErrNotFound
		}
		return fmt.Errorf("select: %w", err)
	}
	return nil
}

func (u *unit) selectAll(ctx context.Context, dest interface{}, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	if err := u.tx.SelectContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("select: %w", err)
	}
	return nil
}

// exec runs a write and returns the number of affected rows.
func (u *unit) exec(ctx context.Context, stmt statement) (int64, error) {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := u.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// execOne runs a write that must touch exactly one row.
func (u *unit) execOne(ctx context.Context, stmt statement) error {
	n, err := u.exec(ctx, stmt)
	if err != nil {
		return err
	}
	if n == 0 {
		return library.ErrNotFound
	}
	return nil
}

// orderBy resolves a sort key against the columns allowed for an entity.
func orderBy(entity string, key library.SortKey, columns map[library.SortKey]string) ([]exp.OrderedExpression, error) {
	if key == "" {
		key = library.SortByID
	}
	col, ok := columns[key]
	if !ok {
		return nil, fmt.Errorf("%w: cannot sort %s by %q", library.ErrValidation, entity, key)
	}
	if col == "id" {
		return []exp.OrderedExpression{goqu.I("id").Asc()}, nil
	}
	return []exp.OrderedExpression{goqu.I(col).Asc(), goqu.I("id").Asc()}, nil
}

// ------------------ Value conversion ------------------

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// nullable returns nil for the zero value so goqu writes NULL.
func nullable[T comparable](v T) interface{} {
	var zero T
	if v == zero {
		return nil
	}
	return v
}

func utc(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
