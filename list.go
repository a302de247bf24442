package main

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"bibliotheque/internal/app"
	"bibliotheque/library"
	"bibliotheque/library/script"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type listOptions struct {
	sort     string
	asJSON   bool
	title    string
	book     string
	member   string
	loaned   string
	returned string
}

func newListCmd(opts *rootOptions) *cobra.Command {
	lo := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the catalog",
	}
	cmd.PersistentFlags().StringVar(&lo.sort, "sort", "", "sort key (id, title, author, acquired, name, loaned, returned, reserved)")
	cmd.PersistentFlags().BoolVar(&lo.asJSON, "json", false, "print JSON instead of a table")

	// query runs fetch against a freshly opened app and prints the result.
	query := func(fetch func(ctx context.Context, lm *library.LibraryManager) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, opts.cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)
			return printResult(cmd.OutOrStdout(), a, lo.asJSON, func() (any, error) {
				return fetch(cmd.Context(), a.Manager)
			})
		}
	}

	books := &cobra.Command{
		Use:   "books",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: query(func(ctx context.Context, lm *library.LibraryManager) (any, error) {
			switch {
			case lo.title != "":
				return lm.BooksByTitle(ctx, lo.title)
			case lo.member != "":
				return lm.BooksBorrowedBy(ctx, lo.member)
			}
			return lm.Books(ctx, library.SortKey(lo.sort))
		}),
	}
	books.Flags().StringVar(&lo.title, "title", "", "only books whose title contains this text")
	books.Flags().StringVar(&lo.member, "borrower", "", "only books on loan to this member")

	members := &cobra.Command{
		Use:   "members",
		Short: "List members",
		Args:  cobra.NoArgs,
		RunE: query(func(ctx context.Context, lm *library.LibraryManager) (any, error) {
			return lm.Members(ctx, library.SortKey(lo.sort))
		}),
	}

	loans := &cobra.Command{
		Use:   "loans",
		Short: "List loans",
		Args:  cobra.NoArgs,
		RunE: query(func(ctx context.Context, lm *library.LibraryManager) (any, error) {
			switch {
			case lo.book != "":
				return lm.LoansByBook(ctx, lo.book)
			case lo.member != "":
				return lm.LoansByMember(ctx, lo.member)
			case lo.loaned != "":
				day, err := script.ParseDate(lo.loaned)
				if err != nil {
					return nil, err
				}
				return lm.LoansByLoanDate(ctx, day)
			case lo.returned != "":
				day, err := script.ParseDate(lo.returned)
				if err != nil {
					return nil, err
				}
				return lm.LoansByReturnDate(ctx, day)
			}
			return lm.Loans(ctx, library.SortKey(lo.sort))
		}),
	}
	loans.Flags().StringVar(&lo.book, "book", "", "only loans of this book")
	loans.Flags().StringVar(&lo.member, "member", "", "only loans of this member")
	loans.Flags().StringVar(&lo.loaned, "loaned", "", "only loans made on this day (YYYY-MM-DD)")
	loans.Flags().StringVar(&lo.returned, "returned", "", "only loans returned on this day (YYYY-MM-DD)")

	reservations := &cobra.Command{
		Use:   "reservations",
		Short: "List reservations",
		Args:  cobra.NoArgs,
		RunE: query(func(ctx context.Context, lm *library.LibraryManager) (any, error) {
			switch {
			case lo.book != "":
				return lm.ReservationsForBook(ctx, lo.book)
			case lo.member != "":
				return lm.ReservationsByMember(ctx, lo.member)
			}
			return lm.Reservations(ctx, library.SortKey(lo.sort))
		}),
	}
	reservations.Flags().StringVar(&lo.book, "book", "", "waiting queue of this book, oldest first")
	reservations.Flags().StringVar(&lo.member, "member", "", "only reservations of this member")

	cmd.AddCommand(books, members, loans, reservations)
	return cmd
}

func printResult(w io.Writer, a *app.App, asJSON bool, fetch func() (any, error)) error {
	result, err := fetch()
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	switch v := result.(type) {
	case []library.Book:
		script.WriteBooks(w, v)
	case []library.Member:
		script.WriteMembers(w, v)
	case []library.Loan:
		script.WriteLoans(w, v)
	case []library.Reservation:
		script.WriteReservations(w, v)
	default:
		a.Logger.Errorf("cannot print %T", result)
		return fmt.Errorf("cannot print %T", result)
	}
	return nil
}
