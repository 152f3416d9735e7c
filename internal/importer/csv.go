// Package importer turns survey exports into geohash clusters ready for the store.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// ErrInputNotFound is returned when the input file does not exist.
var ErrInputNotFound = errors.New("input file not found")

// RawRecord is one input row keyed by normalized column name.
type RawRecord map[string]string

// NormalizeHeader lowercases h and replaces every run of bytes outside
// [a-z0-9] with a single underscore. Non-ASCII letters count as outside,
// so "Länge" becomes "l_nge".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimPrefix(h, "\xef\xbb\xbf"))
	var b strings.Builder
	b.Grow(len(h))
	inRun := false
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte('_')
			inRun = true
		}
	}
	return b.String()
}

// normalizeHeaders normalizes a header row. Columns that collide after
// normalization get a numeric suffix so no value is lost.
func normalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, col := range header {
		name := NormalizeHeader(strings.TrimSpace(col))
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}

// ReadCSV parses a delimited export. The first row is the header; the
// delimiter is whichever of ';' and ',' appears more often in it.
func ReadCSV(r io.Reader) ([]RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := normalizeHeaders(header)

	var records []RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if isBlank(row) {
			continue
		}
		rec := make(RawRecord, len(cols))
		for i, col := range cols {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadCSVFile reads the export at path.
func ReadCSVFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
