package redirects

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"erp/ecommerce/quote-storefront/internal/store"
)

// ImportResult summarises a CSV import. Row errors do not abort the import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

var csvHeader = []string{"from_path", "to_path", "status_code", "is_active", "expires_at"}

func headerKey(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), "_", "")
}

// Import reads redirects from CSV. The header must name from_path and
// to_path; status_code, is_active and expires_at are optional. Header names
// are matched case-insensitively with or without underscores. Rows are
// upserted by from path.
func (s *Store) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, store.Invalid("CSV file must have a header row and at least one data row")
		}
		return ImportResult{}, store.Invalid("malformed CSV: %v", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[headerKey(h)] = i
	}
	fromIdx, okFrom := idx["frompath"]
	toIdx, okTo := idx["topath"]
	if !okFrom || !okTo {
		return ImportResult{}, store.Invalid("CSV must have from_path and to_path columns")
	}
	field := func(rec []string, key string) string {
		i, ok := idx[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var res ImportResult
	var batch []Redirect
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", line, err))
			res.Skipped++
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		in := Input{}
		if fromIdx < len(rec) {
			in.FromPath = rec[fromIdx]
		}
		if toIdx < len(rec) {
			in.ToPath = rec[toIdx]
		}
		if code := field(rec, "statuscode"); code != "" {
			n, err := strconv.Atoi(code)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: invalid status code %q", line, code))
				res.Skipped++
				continue
			}
			in.StatusCode = n
		}
		if active := strings.ToLower(field(rec, "isactive")); active == "false" || active == "0" {
			f := false
			in.Active = &f
		}
		if exp := field(rec, "expiresat"); exp != "" {
			t, err := parseTime(exp)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: invalid expires_at %q", line, exp))
				res.Skipped++
				continue
			}
			in.ExpiresAt = &t
		}

		red, err := in.build()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", line, err))
			res.Skipped++
			continue
		}
		batch = append(batch, red)
	}

	if len(batch) == 0 {
		return res, store.Invalid("no valid redirects found in CSV")
	}
	for _, red := range batch {
		if err := s.upsert(ctx, red); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", red.FromPath, err))
			res.Skipped++
			continue
		}
		res.Imported++
	}
	s.cache.Clear()
	return res, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// Export writes every redirect as CSV in the format Import reads.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	list, err := s.List(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range list {
		expires := ""
		if r.ExpiresAt != nil {
			expires = r.ExpiresAt.UTC().Format(time.RFC3339)
		}
		rec := []string{r.FromPath, r.ToPath, strconv.Itoa(r.StatusCode), strconv.FormatBool(r.Active), expires}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
