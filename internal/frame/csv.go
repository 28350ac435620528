package frame

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// missingTokens are cell values treated as missing on load.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
}

// IsMissingToken reports whether a raw cell value denotes a missing value.
func IsMissingToken(v string) bool {
	return missingTokens[strings.TrimSpace(v)]
}

// FromCSV reads a CSV file with a header row into a frame. Column types are
// inferred: a column where every present value parses as a float becomes a
// Float column, otherwise it stays String.
func FromCSV(path string) (*Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "frame: open %s", path)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "frame: read csv %s", path)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("frame: csv %s is empty", path)
	}
	return FromRecords(records[0], records[1:])
}

// FromRecords builds a frame from a header and string rows, inferring column
// types. Rows must have the same width as the header.
func FromRecords(header []string, rows [][]string) (*Frame, error) {
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, eris.Errorf("frame: row %d has %d fields, want %d", i, len(row), len(header))
		}
	}

	cols := make([]*Column, 0, len(header))
	for j, name := range header {
		raw := make([]string, len(rows))
		missing := make([]bool, len(rows))
		for i, row := range rows {
			raw[i] = row[j]
			missing[i] = IsMissingToken(row[j])
		}
		cols = append(cols, inferColumn(name, raw, missing))
	}
	return New(cols...)
}

// inferColumn builds a Float column when every present value is numeric,
// otherwise a String column. A column with no present values is numeric
// by that rule and infers as Float.
func inferColumn(name string, raw []string, missing []bool) *Column {
	numeric := true
	floats := make([]float64, len(raw))
	for i, v := range raw {
		if missing[i] {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			numeric = false
			break
		}
		floats[i] = f
	}

	if numeric {
		return &Column{Name: name, Kind: Float, Floats: floats, Missing: missing}
	}

	strs := make([]string, len(raw))
	for i, v := range raw {
		if !missing[i] {
			strs[i] = v
		}
	}
	return &Column{Name: name, Kind: String, Strings: strs, Missing: missing}
}

// WriteCSV writes the frame to a CSV file with a header row.
func (f *Frame) WriteCSV(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "frame: create %s", path)
	}
	defer fh.Close()

	w := csv.NewWriter(fh)
	if err := w.WriteAll(f.Records()); err != nil {
		return eris.Wrapf(err, "frame: write csv %s", path)
	}
	w.Flush()
	return eris.Wrapf(w.Error(), "frame: flush csv %s", path)
}
