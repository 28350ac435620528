package cleaning

import "github.com/halcyon-data/mlprep/internal/frame"

// MissingReport summarizes missing values for one column.
type MissingReport struct {
	Column     string  `json:"column" csv:"column"`
	Count      int     `json:"count" csv:"count"`
	Proportion float64 `json:"proportion" csv:"proportion"`
}

// FindMissing returns a per-column missing-value report. Columns with no
// missing values are omitted; an empty slice means the frame is complete.
func FindMissing(f *frame.Frame) []MissingReport {
	var out []MissingReport
	n := f.Len()
	for _, c := range f.Columns() {
		count := c.MissingCount()
		if count == 0 {
			continue
		}
		r := MissingReport{Column: c.Name, Count: count}
		if n > 0 {
			r.Proportion = float64(count) / float64(n)
		}
		out = append(out, r)
	}
	return out
}
