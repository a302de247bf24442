package sqlstore

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"bibliotheque/library"
)

const tableMembers = "members"

var memberColumns = []interface{}{"id", "name", "phone", "loan_limit", "loan_count"}

var memberSortColumns = map[library.SortKey]string{
	library.SortByID:   "id",
	library.SortByName: "name",
}

type memberRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Phone     string `db:"phone"`
	LoanLimit int    `db:"loan_limit"`
	LoanCount int    `db:"loan_count"`
}

func (r memberRow) toMember() library.Member {
	return library.Member(r)
}

type memberRepository struct{ u *unit }

func (r memberRepository) selectMembers() *goqu.SelectDataset {
	return r.u.dialect.From(tableMembers).Select(memberColumns...)
}

func (r memberRepository) Get(ctx context.Context, id string) (library.Member, error) {
	var row memberRow
	if err := r.u.get(ctx, &row, r.selectMembers().Where(goqu.C("id").Eq(id))); err != nil {
		return library.Member{}, err
	}
	return row.toMember(), nil
}

func (r memberRepository) Add(ctx context.Context, m library.Member) error {
	_, err := r.u.exec(ctx, r.u.dialect.Insert(tableMembers).Rows(goqu.Record{
		"id":         m.ID,
		"name":       m.Name,
		"phone":      m.Phone,
		"loan_limit": m.LoanLimit,
		"loan_count": m.LoanCount,
	}).Prepared(true))
	return err
}

func (r memberRepository) Update(ctx context.Context, m library.Member) error {
	return r.u.execOne(ctx, r.u.dialect.Update(tableMembers).
		Set(goqu.Record{
			"name":       m.Name,
			"phone":      m.Phone,
			"loan_limit": m.LoanLimit,
			"loan_count": m.LoanCount,
		}).
		Where(goqu.C("id").Eq(m.ID)).
		Prepared(true))
}

func (r memberRepository) Delete(ctx context.Context, id string) error {
	return r.u.execOne(ctx, r.u.dialect.Delete(tableMembers).Where(goqu.C("id").Eq(id)).Prepared(true))
}

func (r memberRepository) FindAll(ctx context.Context, key library.SortKey) ([]library.Member, error) {
	order, err := orderBy("members", key, memberSortColumns)
	if err != nil {
		return nil, err
	}
	var rows []memberRow
	if err := r.u.selectAll(ctx, &rows, r.selectMembers().Order(order...)); err != nil {
		return nil, err
	}
	members := make([]library.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.toMember())
	}
	return members, nil
}
