package script

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bibliotheque/library"
)

type command struct {
	usage   string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, in *Interpreter, args []string) error
}

var commands = map[string]command{
	"acquerir": {
		usage: "idLivre titre auteur dateAcquisition", minArgs: 4, maxArgs: 4,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			acquired, err := ParseDate(args[3])
			if err != nil {
				return err
			}
			_, err = in.lm.Acquire(ctx, library.BookDraft{ID: args[0], Title: args[1], Author: args[2], AcquiredAt: acquired})
			return err
		},
	},
	"vendre": {
		usage: "idLivre", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			return in.lm.Sell(ctx, args[0])
		},
	},
	"preter": {
		usage: "idLivre idMembre datePret", minArgs: 3, maxArgs: 3,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			at, err := ParseDate(args[2])
			if err != nil {
				return err
			}
			_, err = in.lm.Lend(ctx, args[0], args[1], at)
			return err
		},
	},
	"renouveler": {
		usage: "idLivre datePret", minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			at, err := ParseDate(args[1])
			if err != nil {
				return err
			}
			loan, err := in.lm.OpenLoanForBook(ctx, args[0])
			if err != nil {
				return err
			}
			return in.lm.Renew(ctx, loan.ID, at)
		},
	},
	"retourner": {
		usage: "idLivre dateRetour", minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			at, err := ParseDate(args[1])
			if err != nil {
				return err
			}
			loan, err := in.lm.OpenLoanForBook(ctx, args[0])
			if err != nil {
				return err
			}
			return in.lm.Return(ctx, loan.ID, at)
		},
	},
	"inscrire": {
		usage: "idMembre nom telephone limitePret", minArgs: 4, maxArgs: 4,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			limit, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("%w: invalid loan limit %q", library.ErrValidation, args[3])
			}
			_, err = in.lm.RegisterMember(ctx, library.MemberDraft{ID: args[0], Name: args[1], Phone: args[2], LoanLimit: limit})
			return err
		},
	},
	"desinscrire": {
		usage: "idMembre", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			return in.lm.UnregisterMember(ctx, args[0])
		},
	},
	"reserver": {
		usage: "idReservation idLivre idMembre dateReservation", minArgs: 4, maxArgs: 4,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			at, err := ParseDate(args[3])
			if err != nil {
				return err
			}
			_, err = in.lm.Reserve(ctx, library.ReservationDraft{ID: args[0], BookID: args[1], MemberID: args[2], ReservedAt: at})
			return err
		},
	},
	"prendreRes": {
		usage: "idReservation datePret", minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			at, err := ParseDate(args[1])
			if err != nil {
				return err
			}
			_, err = in.lm.ClaimReservation(ctx, args[0], at)
			return err
		},
	},
	"annulerRes": {
		usage: "idReservation", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			return in.lm.CancelReservation(ctx, args[0])
		},
	},
	"listerLivres": {
		usage: "", minArgs: 0, maxArgs: 0,
		run: func(ctx context.Context, in *Interpreter, _ []string) error {
			books, err := in.lm.Books(ctx, library.SortByID)
			if err != nil {
				return err
			}
			WriteBooks(in.out, books)
			return nil
		},
	},
	"listerLivresTitre": {
		usage: "mot", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			books, err := in.lm.BooksByTitle(ctx, args[0])
			if err != nil {
				return err
			}
			WriteBooks(in.out, books)
			return nil
		},
	},
	"listerPretsMembre": {
		usage: "idMembre", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			if _, err := in.lm.Member(ctx, args[0]); err != nil {
				return err
			}
			loans, err := in.lm.LoansByMember(ctx, args[0])
			if err != nil {
				return err
			}
			WriteLoans(in.out, loans)
			return nil
		},
	},
	"listerReservations": {
		usage: "idLivre", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, in *Interpreter, args []string) error {
			if _, err := in.lm.Book(ctx, args[0]); err != nil {
				return err
			}
			queue, err := in.lm.ReservationsForBook(ctx, args[0])
			if err != nil {
				return err
			}
			WriteReservations(in.out, queue)
			return nil
		},
	},
}

var aliases = map[string]string{
	"acquire":         "acquerir",
	"sell":            "vendre",
	"lend":            "preter",
	"renew":           "renouveler",
	"return":          "retourner",
	"register":        "inscrire",
	"unregister":      "desinscrire",
	"reserve":         "reserver",
	"utiliser":        "prendreRes",
	"claim":           "prendreRes",
	"annuler":         "annulerRes",
	"cancel":          "annulerRes",
	"books":           "listerLivres",
	"books-by-title":  "listerLivresTitre",
	"loans-by-member": "listerPretsMembre",
	"reservations":    "listerReservations",
}

// lookup resolves a command name or alias, ignoring case.
func lookup(name string) (command, bool) {
	for key, cmd := range commands {
		if strings.EqualFold(key, name) {
			return cmd, true
		}
	}
	if target, ok := aliases[strings.ToLower(name)]; ok {
		return commands[target], true
	}
	return command{}, false
}

// ------------------ Output ------------------

// WriteBooks prints books as a table.
func WriteBooks(w io.Writer, books []library.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books.")
		return
	}
	fmt.Fprintf(w, "%-10s %-30s %-25s %-10s %-10s\n", "ID", "Title", "Author", "Acquired", "Borrower")
	fmt.Fprintln(w, strings.Repeat("-", 89))
	for _, b := range books {
		borrower := "-"
		if b.OnLoan() {
			borrower = b.BorrowerID
		}
		fmt.Fprintf(w, "%-10s %-30s %-25s %-10s %-10s\n",
			TruncateString(b.ID, 10),
			TruncateString(b.Title, 30),
			TruncateString(b.Author, 25),
			b.AcquiredAt.Format("2006-01-02"),
			borrower)
	}
}

// WriteMembers prints members with their loan usage.
func WriteMembers(w io.Writer, members []library.Member) {
	if len(members) == 0 {
		fmt.Fprintln(w, "No members.")
		return
	}
	fmt.Fprintf(w, "%-10s %-30s %-15s %-8s\n", "ID", "Name", "Phone", "Loans")
	fmt.Fprintln(w, strings.Repeat("-", 66))
	for _, m := range members {
		fmt.Fprintf(w, "%-10s %-30s %-15s %-8s\n",
			TruncateString(m.ID, 10),
			TruncateString(m.Name, 30),
			TruncateString(m.Phone, 15),
			fmt.Sprintf("%d/%d", m.LoanCount, m.LoanLimit))
	}
}

// WriteLoans prints loans, open ones with "-" as return date.
func WriteLoans(w io.Writer, loans []library.Loan) {
	if len(loans) == 0 {
		fmt.Fprintln(w, "No loans.")
		return
	}
	fmt.Fprintf(w, "%-36s %-10s %-10s %-10s %-10s\n", "Loan", "Book", "Member", "Loaned", "Returned")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, l := range loans {
		returned := "-"
		if !l.Open() {
			returned = l.ReturnedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%-36s %-10s %-10s %-10s %-10s\n",
			l.ID, TruncateString(l.BookID, 10), TruncateString(l.MemberID, 10), l.LoanedAt.Format("2006-01-02"), returned)
	}
}

// WriteReservations prints reservations numbered in the given order.
func WriteReservations(w io.Writer, queue []library.Reservation) {
	if len(queue) == 0 {
		fmt.Fprintln(w, "No reservations.")
		return
	}
	fmt.Fprintf(w, "%-4s %-36s %-10s %-10s %-10s\n", "#", "Reservation", "Book", "Member", "Reserved")
	fmt.Fprintln(w, strings.Repeat("-", 74))
	for i, r := range queue {
		fmt.Fprintf(w, "%-4d %-36s %-10s %-10s %-10s\n",
			i+1, r.ID, TruncateString(r.BookID, 10), TruncateString(r.MemberID, 10), r.ReservedAt.Format("2006-01-02"))
	}
}

// TruncateString shortens s to maxLen characters, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
