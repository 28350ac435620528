package cleaning

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/halcyon-data/mlprep/internal/frame"
)

// FreqEntry is one row of a frequency table.
type FreqEntry struct {
	Value      string  `json:"value" csv:"value"`
	Count      int     `json:"count" csv:"count"`
	Proportion float64 `json:"proportion" csv:"proportion"`
}

// FreqTable is the frequency table of one categorical column.
type FreqTable struct {
	Column  string      `json:"column"`
	Entries []FreqEntry `json:"entries"`
}

// FreqTables computes a frequency table for each named string column,
// or for every string column when no names are given. Missing values are
// excluded from the counts. Entries are sorted by count descending, then
// value ascending.
func FreqTables(f *frame.Frame, names ...string) ([]FreqTable, error) {
	if len(names) == 0 {
		for _, c := range f.Columns() {
			if c.Kind == frame.String {
				names = append(names, c.Name)
			}
		}
	}

	out := make([]FreqTable, 0, len(names))
	for _, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Kind != frame.String {
			return nil, eris.Errorf("cleaning: column %q is not a string column", name)
		}

		counts := make(map[string]int)
		present := 0
		for i, v := range c.Strings {
			if c.Missing[i] {
				continue
			}
			counts[v]++
			present++
		}

		entries := make([]FreqEntry, 0, len(counts))
		for v, n := range counts {
			e := FreqEntry{Value: v, Count: n}
			if present > 0 {
				e.Proportion = float64(n) / float64(present)
			}
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Count != entries[j].Count {
				return entries[i].Count > entries[j].Count
			}
			return entries[i].Value < entries[j].Value
		})
		out = append(out, FreqTable{Column: name, Entries: entries})
	}
	return out, nil
}
