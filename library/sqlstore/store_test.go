package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotheque/library"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	dsn, err := SQLiteDSN(filepath.Join(dir, "nested", "lib.db"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "file:"))
	assert.Contains(t, dsn, "_foreign_keys=1")
	assert.Contains(t, dsn, "_txlock=immediate")

	kept, err := SQLiteDSN("file::memory:?cache=shared")
	require.NoError(t, err)
	assert.Equal(t, "file::memory:?cache=shared", kept)

	_, err = SQLiteDSN("")
	require.Error(t, err)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestBookRoundTrip(t *testing.T) {
	store := tempDB(t)
	ctx := context.Background()

	acquired := day("2023-05-04").Add(13*time.Hour + 30*time.Minute)
	err := store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		require.NoError(t, repos.Members().Add(ctx, library.Member{ID: "M1", Name: "Ann", LoanLimit: 2}))
		require.NoError(t, repos.Books().Add(ctx, library.Book{ID: "B1", Title: "Dune", Author: "Herbert", AcquiredAt: acquired}))
		require.NoError(t, repos.Books().Add(ctx, library.Book{ID: "B2", Title: "Children of Dune", Author: "Herbert", AcquiredAt: acquired}))
		return nil
	})
	require.NoError(t, err)

	err = store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		b, err := repos.Books().Get(ctx, "B1")
		require.NoError(t, err)
		assert.Equal(t, library.Book{ID: "B1", Title: "Dune", Author: "Herbert", AcquiredAt: acquired}, b)

		b.BorrowerID = "M1"
		b.LoanedAt = day("2024-01-01")
		require.NoError(t, repos.Books().Update(ctx, b))

		again, err := repos.Books().Get(ctx, "B1")
		require.NoError(t, err)
		assert.Equal(t, b, again)

		found, err := repos.Books().FindByTitle(ctx, "dune")
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "B2", found[0].ID)

		borrowed, err := repos.Books().FindByBorrower(ctx, "M1")
		require.NoError(t, err)
		require.Len(t, borrowed, 1)

		_, err = repos.Books().Get(ctx, "B9")
		assert.ErrorIs(t, err, library.ErrNotFound)
		assert.ErrorIs(t, repos.Books().Update(ctx, library.Book{ID: "B9", Title: "x", AcquiredAt: acquired}), library.ErrNotFound)
		assert.ErrorIs(t, repos.Books().Delete(ctx, "B9"), library.ErrNotFound)
		assert.ErrorIs(t, repos.Books().Add(ctx, library.Book{ID: "B1", Title: "dup", AcquiredAt: acquired}), library.ErrAlreadyExists)
		return nil
	})
	require.NoError(t, err)
}

func TestExecuteRollsBack(t *testing.T) {
	store := tempDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		require.NoError(t, repos.Members().Add(ctx, library.Member{ID: "M1", Name: "Ann", LoanLimit: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		members, err := repos.Members().FindAll(ctx, library.SortByName)
		require.NoError(t, err)
		assert.Empty(t, members)
		return nil
	})
	require.NoError(t, err)
}

func TestSchemaBackstops(t *testing.T) {
	store := tempDB(t)
	ctx := context.Background()

	err := store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		require.NoError(t, repos.Members().Add(ctx, library.Member{ID: "M1", Name: "Ann", LoanLimit: 1}))
		require.NoError(t, repos.Members().Add(ctx, library.Member{ID: "M2", Name: "Bob", LoanLimit: 1}))
		require.NoError(t, repos.Books().Add(ctx, library.Book{ID: "B1", Title: "Dune", AcquiredAt: day("2023-01-01")}))
		require.NoError(t, repos.Loans().Add(ctx, library.Loan{ID: "L1", BookID: "B1", MemberID: "M1", LoanedAt: day("2024-01-01")}))
		return nil
	})
	require.NoError(t, err)

	// second open loan for the same book
	err = store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		return repos.Loans().Add(ctx, library.Loan{ID: "L2", BookID: "B1", MemberID: "M2", LoanedAt: day("2024-01-02")})
	})
	require.ErrorIs(t, err, library.ErrAlreadyExists)

	// duplicate reservation of a book by the same member
	err = store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		require.NoError(t, repos.Reservations().Add(ctx, library.Reservation{ID: "R1", BookID: "B1", MemberID: "M2", ReservedAt: day("2024-01-02")}))
		return repos.Reservations().Add(ctx, library.Reservation{ID: "R2", BookID: "B1", MemberID: "M2", ReservedAt: day("2024-01-03")})
	})
	require.ErrorIs(t, err, library.ErrAlreadyExists)

	// loan count above the limit
	err = store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		return repos.Members().Update(ctx, library.Member{ID: "M1", Name: "Ann", LoanLimit: 1, LoanCount: 2})
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, library.ErrAlreadyExists))
}

func TestLoanAndReservationFinders(t *testing.T) {
	store := tempDB(t)
	ctx := context.Background()

	err := store.Execute(ctx, func(ctx context.Context, repos library.Repositories) error {
		for _, id := range []string{"M1", "M2", "M3"} {
			require.NoError(t, repos.Members().Add(ctx, library.Member{ID: id, Name: id, LoanLimit: 3}))
		}
		for _, id := range []string{"B1", "B2"} {
			require.NoError(t, repos.Books().Add(ctx, library.Book{ID: id, Title: id, AcquiredAt: day("2023-01-01")}))
		}

		loans := repos.Loans()
		require.NoError(t, loans.Add(ctx, library.Loan{ID: "L1", BookID: "B1", MemberID: "M1",
			LoanedAt: day("2024-01-01").Add(9 * time.Hour), ReturnedAt: day("2024-01-05").Add(17 * time.Hour)}))
		require.NoError(t, loans.Add(ctx, library.Loan{ID: "L2", BookID: "B1", MemberID: "M2", LoanedAt: day("2024-01-06")}))
		require.NoError(t, loans.Add(ctx, library.Loan{ID: "L3", BookID: "B2", MemberID: "M1", LoanedAt: day("2024-01-01").Add(20 * time.Hour)}))

		open, err := loans.FindOpenByBook(ctx, "B1")
		require.NoError(t, err)
		assert.Equal(t, "L2", open.ID)
		assert.True(t, open.Open())

		history, err := loans.FindByBook(ctx, "B1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "L1", history[0].ID)
		assert.Equal(t, day("2024-01-05").Add(17*time.Hour), history[0].ReturnedAt)

		onDay, err := loans.FindByLoanDate(ctx, day("2024-01-01"))
		require.NoError(t, err)
		require.Len(t, onDay, 2)
		assert.Equal(t, "L1", onDay[0].ID)
		assert.Equal(t, "L3", onDay[1].ID)

		returned, err := loans.FindByReturnDate(ctx, day("2024-01-05"))
		require.NoError(t, err)
		require.Len(t, returned, 1)

		byMember, err := loans.FindByMember(ctx, "M1")
		require.NoError(t, err)
		assert.Len(t, byMember, 2)

		l2 := open
		l2.ReturnedAt = day("2024-01-07")
		require.NoError(t, loans.Update(ctx, l2))
		_, err = loans.FindOpenByBook(ctx, "B1")
		assert.ErrorIs(t, err, library.ErrNotFound)

		res := repos.Reservations()
		require.NoError(t, res.Add(ctx, library.Reservation{ID: "R3", BookID: "B2", MemberID: "M3", ReservedAt: day("2024-01-03")}))
		require.NoError(t, res.Add(ctx, library.Reservation{ID: "R2", BookID: "B2", MemberID: "M2", ReservedAt: day("2024-01-02")}))

		queue, err := res.FindByBook(ctx, "B2")
		require.NoError(t, err)
		require.Len(t, queue, 2)
		assert.Equal(t, "R2", queue[0].ID)

		all, err := res.FindAll(ctx, library.SortByReserved)
		require.NoError(t, err)
		assert.Equal(t, "R2", all[0].ID)

		_, err = res.FindAll(ctx, library.SortByTitle)
		assert.ErrorIs(t, err, library.ErrValidation)

		require.NoError(t, res.Delete(ctx, "R2"))
		assert.ErrorIs(t, res.Delete(ctx, "R2"), library.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

// TestEngineOnSQLite runs a full lending cycle through the rule engine on SQLite.
func TestEngineOnSQLite(t *testing.T) {
	store := tempDB(t)
	ctx := context.Background()
	lm := library.NewLibraryManager(store)

	_, err := lm.RegisterMember(ctx, library.MemberDraft{ID: "M1", Name: "Alice", LoanLimit: 1})
	require.NoError(t, err)
	_, err = lm.RegisterMember(ctx, library.MemberDraft{ID: "M2", Name: "Bob", LoanLimit: 1})
	require.NoError(t, err)
	_, err = lm.Acquire(ctx, library.BookDraft{ID: "B1", Title: "Test Book", Author: "Test Author", AcquiredAt: day("2023-01-01")})
	require.NoError(t, err)

	loan, err := lm.Lend(ctx, "B1", "M1", day("2024-01-01"))
	require.NoError(t, err)

	_, err = lm.Lend(ctx, "B1", "M2", day("2024-01-01"))
	require.ErrorIs(t, err, library.ErrExistingLoan)

	_, err = lm.Reserve(ctx, library.ReservationDraft{ID: "R1", BookID: "B1", MemberID: "M2", ReservedAt: day("2024-01-02")})
	require.NoError(t, err)

	require.ErrorIs(t, lm.UnregisterMember(ctx, "M2"), library.ErrExistingReservation)
	require.NoError(t, lm.Return(ctx, loan.ID, day("2024-01-03")))

	claimed, err := lm.ClaimReservation(ctx, "R1", day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, "M2", claimed.MemberID)

	m2, err := lm.Member(ctx, "M2")
	require.NoError(t, err)
	assert.Equal(t, 1, m2.LoanCount)

	require.NoError(t, lm.Return(ctx, claimed.ID, day("2024-01-05")))
	require.NoError(t, lm.Sell(ctx, "B1"))
	require.NoError(t, lm.UnregisterMember(ctx, "M2"))

	history, err := lm.LoansByMember(ctx, "M2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Open())
}
