package script

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"bibliotheque/library"
)

// tokenize splits a script line on blanks. Double quotes group a token that
// contains spaces, e.g. acquerir B1 "War and Peace" Tolstoy 2024-01-01. A quote
// inside an unquoted token (O"Brien) is a parse error; write "O""Brien" instead.
func tokenize(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(strings.ReplaceAll(line, "\t", " ")))
	r.Comma = ' '
	r.FieldsPerRecord = -1

	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse line: %v", library.ErrValidation, err)
	}

	tokens := fields[:0]
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens, nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339}

// ParseDate accepts a calendar date or an RFC 3339 timestamp and returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", library.ErrValidation, s)
}
