package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotheque/internal/app"
	"bibliotheque/library"
)

const lendingScript = `inscrire M1 Alice 555-0101 2
inscrire M2 Bob 555-0102 1
acquerir B1 "The Hobbit" Tolkien 2023-01-01
acquerir B2 Emma Austen 2023-02-01
preter B1 M1 2024-01-01
reserver R1 B1 M2 2024-01-02
preter B1 M2 2024-01-03
`

// execute runs the CLI with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func tempDSN(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "library.db")
}

func TestRunScriptThenList(t *testing.T) {
	dsn := tempDSN(t)
	scriptFile := filepath.Join(t.TempDir(), "lending.txt")
	require.NoError(t, os.WriteFile(scriptFile, []byte(lendingScript), 0o644))

	out, logs, err := execute(t, "", "--dsn", dsn, "run", scriptFile)
	require.NoError(t, err)
	assert.Contains(t, out, "preter B1 M2 2024-01-03\n** lend: book B1: book is on loan to member M1\n")
	assert.Contains(t, logs, "blake2b=")
	assert.Contains(t, logs, "failed=1")

	out, _, err = execute(t, "", "--dsn", dsn, "list", "books", "--json")
	require.NoError(t, err)
	var books []library.Book
	require.NoError(t, json.Unmarshal([]byte(out), &books))
	require.Len(t, books, 2)
	assert.Equal(t, "B1", books[0].ID)
	assert.Equal(t, "M1", books[0].BorrowerID)

	out, _, err = execute(t, "", "--dsn", dsn, "list", "books", "--title", "hob")
	require.NoError(t, err)
	assert.Contains(t, out, "The Hobbit")
	assert.NotContains(t, out, "Emma")

	out, _, err = execute(t, "", "--dsn", dsn, "list", "members", "--sort", "name")
	require.NoError(t, err)
	assert.Contains(t, out, "1/2")

	out, _, err = execute(t, "", "--dsn", dsn, "list", "reservations", "--book", "B1")
	require.NoError(t, err)
	assert.Contains(t, out, "R1")

	out, _, err = execute(t, "", "--dsn", dsn, "list", "loans", "--loaned", "2024-01-01")
	require.NoError(t, err)
	assert.Contains(t, out, "B1")
}

func TestRunStrictFailsOnRejectedCommand(t *testing.T) {
	_, _, err := execute(t, lendingScript, "--storage", "memory", "run", "--strict", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 7 commands failed")

	_, _, err = execute(t, lendingScript, "--storage", "memory", "run")
	require.NoError(t, err)
}

func TestRunWritesMetricsFile(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "biblio.prom")

	_, _, err := execute(t, lendingScript, "--storage", "memory", "--metrics-file", metrics, "run")
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bibliotheque_operations_total{op="lend",outcome="existing_loan"} 1`)
	assert.Contains(t, string(data), `bibliotheque_operations_total{op="register",outcome="ok"} 2`)
}

func TestShellEchoesWhenNotATerminal(t *testing.T) {
	out, _, err := execute(t, "inscrire M1 Ann 555 1\nlisterLivres\nexit\ninscrire M2 Bob 555 1\n", "--storage", "memory", "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "inscrire M1 Ann 555 1\n")
	assert.Contains(t, out, "No books.")
	assert.NotContains(t, out, "M2")
}

func TestMigrateCommands(t *testing.T) {
	dsn := tempDSN(t)

	out, _, err := execute(t, "", "--dsn", dsn, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending    2")

	out, _, err = execute(t, "", "--dsn", dsn, "migrate", "up", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "version    1")

	out, _, err = execute(t, "", "--dsn", dsn, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "pending    0")

	out, _, err = execute(t, "", "--dsn", dsn, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "version    1")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	_, _, err := execute(t, "", "--storage", "memory", "migrate", "status")
	require.ErrorIs(t, err, app.ErrNoDatabase)
}

func TestInvalidSettings(t *testing.T) {
	_, _, err := execute(t, "", "--storage", "mysql", "list", "books")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage")

	_, _, err = execute(t, "", "--storage", "memory", "list", "books", "--sort", "colour")
	require.ErrorIs(t, err, library.ErrValidation)
}
