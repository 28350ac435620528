package frame

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Load reads a tabular file into a frame, dispatching on the file extension.
// Supported: .csv, .xlsx.
func Load(path string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FromCSV(path)
	case ".xlsx":
		return FromXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("frame: unsupported file type %q", filepath.Ext(path))
	}
}
