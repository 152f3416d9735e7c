package importer

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
)

// harFile is the subset of HAR 1.2 the extractor reads.
type harFile struct {
	Log struct {
		Entries []harEntry `json:"entries"`
	} `json:"log"`
}

type harEntry struct {
	Request struct {
		Method string `json:"method"`
		URL    string `json:"url"`
	} `json:"request"`
	Response struct {
		Status  int `json:"status"`
		Content struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"content"`
	} `json:"response"`
}

// tableResponse is the body of a table query: column names plus rows whose
// cells are keyed by column position ("c0", "c1", ...).
type tableResponse struct {
	Schema struct {
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
	} `json:"schema"`
	Rows []map[string]any `json:"rows"`
}

// ReadHAR extracts table rows from the successful JSON POST responses of a
// HAR capture. Entries that do not carry a table body are skipped.
func ReadHAR(r io.Reader) ([]RawRecord, error) {
	var har harFile
	if err := json.NewDecoder(r).Decode(&har); err != nil {
		return nil, fmt.Errorf("decode har: %w", err)
	}

	var records []RawRecord
	for _, e := range har.Log.Entries {
		if !strings.EqualFold(e.Request.Method, "POST") || e.Response.Status != 200 {
			continue
		}
		if !strings.Contains(strings.ToLower(e.Response.Content.MimeType), "json") {
			continue
		}
		body := e.Response.Content.Text
		if e.Response.Content.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(body)
			if err != nil {
				continue
			}
			body = string(decoded)
		}

		var table tableResponse
		if err := json.Unmarshal([]byte(body), &table); err != nil || len(table.Schema.Columns) == 0 {
			continue
		}
		names := make([]string, len(table.Schema.Columns))
		for i, col := range table.Schema.Columns {
			names[i] = col.Name
		}
		cols := normalizeHeaders(names)

		for _, row := range table.Rows {
			rec := make(RawRecord, len(cols))
			for i, col := range cols {
				rec[col] = cellString(row["c"+strconv.Itoa(i)])
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// ReadHARFile reads the capture at path.
func ReadHARFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadHAR(f)
}

// DedupeByName sorts rows by the name column and keeps the last occurrence of
// every name. Captures often contain the same page of rows more than once.
func DedupeByName(raws []RawRecord, nameField string) []RawRecord {
	last := make(map[string]RawRecord, len(raws))
	for _, r := range raws {
		last[strings.TrimSpace(r[nameField])] = r
	}
	names := make([]string, 0, len(last))
	for name := range last {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]RawRecord, 0, len(names))
	for _, name := range names {
		out = append(out, last[name])
	}
	return out
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}
