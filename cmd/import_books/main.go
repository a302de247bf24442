package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bibliotheque/internal/app"
	"bibliotheque/internal/config"
	"bibliotheque/library"
	"bibliotheque/library/script"
)

func main() {
	if err := newImportCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newImportCmd() *cobra.Command {
	cfg, envErr := config.FromEnv()
	if envErr != nil {
		cfg = config.DefaultConfig()
	}

	cmd := &cobra.Command{
		Use:   "import_books catalog.csv",
		Short: "Acquire every book listed in a CSV catalog",
		Long: `import_books reads rows of id,title,author[,acquired] and acquires each book.
A header row starting with "id" is skipped. Rows without an acquisition date use today.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer f.Close()

			logger, err := app.NewLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := app.NewWithLogger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.Logger.WithError(err).Warn("shutdown incomplete")
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Importing books from %s...\n", args[0])
			res, err := importCatalog(cmd.Context(), a.Manager, f, out, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Successfully imported: %d books\n", res.imported)
			fmt.Fprintf(out, "Errors: %d\n", res.failed)

			if res.imported > 0 {
				fmt.Fprintln(out, "\nCatalog:")
				books, err := a.Manager.Books(cmd.Context(), library.SortByID)
				if err != nil {
					fmt.Fprintf(out, "Error retrieving books: %v\n", err)
				} else {
					script.WriteBooks(out, books)
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage driver: memory, sqlite3, pgx or postgres")
	flags.StringVar(&cfg.DSN, "dsn", cfg.DSN, "database file (sqlite3) or connection string")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	flags.BoolVar(&cfg.AutoMigrate, "auto-migrate", cfg.AutoMigrate, "apply pending schema migrations on startup")
	return cmd
}

type importResult struct {
	imported int
	failed   int
}

// importCatalog acquires one book per CSV row. A bad row is reported and skipped;
// only a malformed file or a cancelled context stops the import.
func importCatalog(ctx context.Context, lm *library.LibraryManager, r io.Reader, out io.Writer, today time.Time) (importResult, error) {
	var res importResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for row := 1; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("read catalog: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if row == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "id") {
			continue
		}

		draft, err := parseRow(record, today)
		if err != nil {
			fmt.Fprintf(out, "Row %d: ERROR - %v\n", row, err)
			res.failed++
			continue
		}

		fmt.Fprintf(out, "Importing: %s by %s... ", draft.Title, draft.Author)
		book, err := lm.Acquire(ctx, draft)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			res.failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %s)\n", book.ID)
		res.imported++
	}
}

func parseRow(record []string, today time.Time) (library.BookDraft, error) {
	if len(record) < 3 || len(record) > 4 {
		return library.BookDraft{}, fmt.Errorf("expected id,title,author[,acquired], got %d fields", len(record))
	}

	draft := library.BookDraft{
		ID:         strings.TrimSpace(record[0]),
		Title:      strings.TrimSpace(record[1]),
		Author:     strings.TrimSpace(record[2]),
		AcquiredAt: today,
	}
	if len(record) == 4 && strings.TrimSpace(record[3]) != "" {
		acquired, err := script.ParseDate(strings.TrimSpace(record[3]))
		if err != nil {
			return library.BookDraft{}, err
		}
		draft.AcquiredAt = acquired
	}
	return draft, nil
}
