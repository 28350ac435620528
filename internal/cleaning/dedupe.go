package cleaning

import (
	"strings"

	"github.com/halcyon-data/mlprep/internal/frame"
)

// DropDuplicates returns a new frame with exact duplicate rows removed,
// keeping the first occurrence. Row identity is the rendered record, so a
// missing value only matches another missing value.
func DropDuplicates(f *frame.Frame) (*frame.Frame, error) {
	records := f.Records()
	header, rows := records[0], records[1:]

	seen := make(map[string]bool, len(rows))
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		key := strings.Join(row, "\x1f")
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, row)
	}
	return frame.FromRecords(header, kept)
}
