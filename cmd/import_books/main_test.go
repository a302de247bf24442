package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotheque/library"
	"bibliotheque/library/memory"
)

func TestImportCatalog(t *testing.T) {
	ctx := context.Background()
	lm := library.NewLibraryManager(memory.NewStore())
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	catalog := `id,title,author,acquired
# classics
B1,1984,George Orwell,2023-01-15
B2,"The Art of War",Sun Tzu
B1,Animal Farm,George Orwell,2023-02-01
B3,Romeo and Juliet
B4,,Nobody,2023-03-01
B5,Emma,Jane Austen,last week
`
	var out bytes.Buffer
	res, err := importCatalog(ctx, lm, strings.NewReader(catalog), &out, today)
	require.NoError(t, err)

	assert.Equal(t, 2, res.imported)
	assert.Equal(t, 4, res.failed)

	text := out.String()
	assert.Contains(t, text, "Importing: 1984 by George Orwell... SUCCESS (ID: B1)")
	assert.Contains(t, text, "Importing: Animal Farm by George Orwell... ERROR - acquire: book B1: book already exists")
	assert.Contains(t, text, "got 2 fields")
	assert.Contains(t, text, "invalid date")

	books, err := lm.Books(ctx, library.SortByID)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), books[0].AcquiredAt)
	assert.Equal(t, today, books[1].AcquiredAt)
}

func TestImportCatalogMalformedFile(t *testing.T) {
	lm := library.NewLibraryManager(memory.NewStore())

	_, err := importCatalog(context.Background(), lm, strings.NewReader("B1,\"broken,Author\n"), &bytes.Buffer{}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read catalog")
}
