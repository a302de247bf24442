package sqlstore

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"

	"bibliotheque/library"
)

const tableReservations = "reservations"

var reservationColumns = []interface{}{"id", "book_id", "member_id", "reserved_at"}

var reservationSortColumns = map[library.SortKey]string{
	library.SortByID:       "id",
	library.SortByReserved: "reserved_at",
}

type reservationRow struct {
	ID         string    `db:"id"`
	BookID     string    `db:"book_id"`
	MemberID   string    `db:"member_id"`
	ReservedAt time.Time `db:"reserved_at"`
}

func (r reservationRow) toReservation() library.Reservation {
	return library.Reservation{ID: r.ID, BookID: r.BookID, MemberID: r.MemberID, ReservedAt: r.ReservedAt.UTC()}
}

type reservationRepository struct{ u *unit }

func (r reservationRepository) selectReservations() *goqu.SelectDataset {
	return r.u.dialect.From(tableReservations).Select(reservationColumns...)
}

func (r reservationRepository) Get(ctx context.Context, id string) (library.Reservation, error) {
	var row reservationRow
	if err := r.u.get(ctx, &row, r.selectReservations().Where(goqu.C("id").Eq(id))); err != nil {
		return library.Reservation{}, err
	}
	return row.toReservation(), nil
}

func (r reservationRepository) Add(ctx context.Context, res library.Reservation) error {
	_, err := r.u.exec(ctx, r.u.dialect.Insert(tableReservations).Rows(goqu.Record{
		"id":          res.ID,
		"book_id":     res.BookID,
		"member_id":   res.MemberID,
		"reserved_at": res.ReservedAt.UTC(),
	}).Prepared(true))
	return err
}

func (r reservationRepository) Delete(ctx context.Context, id string) error {
	return r.u.execOne(ctx, r.u.dialect.Delete(tableReservations).Where(goqu.C("id").Eq(id)).Prepared(true))
}

func (r reservationRepository) FindAll(ctx context.Context, key library.SortKey) ([]library.Reservation, error) {
	order, err := orderBy("reservations", key, reservationSortColumns)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, r.selectReservations().Order(order...))
}

// FindByBook returns the book's queue, first in line first.
func (r reservationRepository) FindByBook(ctx context.Context, bookID string) ([]library.Reservation, error) {
	return r.find(ctx, r.queueOrder(r.selectReservations().Where(goqu.C("book_id").Eq(bookID))))
}

func (r reservationRepository) FindByMember(ctx context.Context, memberID string) ([]library.Reservation, error) {
	return r.find(ctx, r.queueOrder(r.selectReservations().Where(goqu.C("member_id").Eq(memberID))))
}

func (r reservationRepository) queueOrder(ds *goqu.SelectDataset) *goqu.SelectDataset {
	return ds.Order(goqu.I("reserved_at").Asc(), goqu.I("id").Asc())
}

func (r reservationRepository) find(ctx context.Context, ds *goqu.SelectDataset) ([]library.Reservation, error) {
	var rows []reservationRow
	if err := r.u.selectAll(ctx, &rows, ds); err != nil {
		return nil, err
	}
	out := make([]library.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toReservation())
	}
	return out, nil
}
