package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"

	"bibliotheque/library"
)

const tableBooks = "books"

var bookColumns = []interface{}{"id", "title", "author", "acquired_at", "borrower_id", "loaned_at"}

var bookSortColumns = map[library.SortKey]string{
	library.SortByID:       "id",
	library.SortByTitle:    "title",
	library.SortByAuthor:   "author",
	library.SortByAcquired: "acquired_at",
}

type bookRow struct {
	ID         string         `db:"id"`
	Title      string         `db:"title"`
	Author     string         `db:"author"`
	AcquiredAt time.Time      `db:"acquired_at"`
	BorrowerID sql.NullString `db:"borrower_id"`
	LoanedAt   sql.NullTime   `db:"loaned_at"`
}

func (r bookRow) toBook() library.Book {
	return library.Book{
		ID:         r.ID,
		Title:      r.Title,
		Author:     r.Author,
		AcquiredAt: r.AcquiredAt.UTC(),
		BorrowerID: r.BorrowerID.String,
		LoanedAt:   fromNullTime(r.LoanedAt),
	}
}

func bookRecord(b library.Book) goqu.Record {
	return goqu.Record{
		"title":       b.Title,
		"author":      b.Author,
		"acquired_at": b.AcquiredAt.UTC(),
		"borrower_id": nullable(b.BorrowerID),
		"loaned_at":   utc(b.LoanedAt),
	}
}

type bookRepository struct{ u *unit }

func (r bookRepository) selectBooks() *goqu.SelectDataset {
	return r.u.dialect.From(tableBooks).Select(bookColumns...)
}

func (r bookRepository) Get(ctx context.Context, id string) (library.Book, error) {
	var row bookRow
	if err := r.u.get(ctx, &row, r.selectBooks().Where(goqu.C("id").Eq(id))); err != nil {
		return library.Book{}, err
	}
	return row.toBook(), nil
}

func (r bookRepository) Add(ctx context.Context, b library.Book) error {
	rec := bookRecord(b)
	rec["id"] = b.ID
	_, err := r.u.exec(ctx, r.u.dialect.Insert(tableBooks).Rows(rec).Prepared(true))
	return err
}

func (r bookRepository) Update(ctx context.Context, b library.Book) error {
	return r.u.execOne(ctx, r.u.dialect.Update(tableBooks).
		Set(bookRecord(b)).
		Where(goqu.C("id").Eq(b.ID)).
		Prepared(true))
}

func (r bookRepository) Delete(ctx context.Context, id string) error {
	return r.u.execOne(ctx, r.u.dialect.Delete(tableBooks).Where(goqu.C("id").Eq(id)).Prepared(true))
}

func (r bookRepository) FindAll(ctx context.Context, key library.SortKey) ([]library.Book, error) {
	order, err := orderBy("books", key, bookSortColumns)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, r.selectBooks().Order(order...))
}

func (r bookRepository) FindByTitle(ctx context.Context, substr string) ([]library.Book, error) {
	return r.find(ctx, r.selectBooks().
		Where(goqu.C("title").ILike("%"+substr+"%")).
		Order(goqu.I("title").Asc(), goqu.I("id").Asc()))
}

func (r bookRepository) FindByBorrower(ctx context.Context, memberID string) ([]library.Book, error) {
	return r.find(ctx, r.selectBooks().
		Where(goqu.C("borrower_id").Eq(memberID)).
		Order(goqu.I("id").Asc()))
}

func (r bookRepository) find(ctx context.Context, ds *goqu.SelectDataset) ([]library.Book, error) {
	var rows []bookRow
	if err := r.u.selectAll(ctx, &rows, ds); err != nil {
		return nil, err
	}
	books := make([]library.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.toBook())
	}
	return books, nil
}
