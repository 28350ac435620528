// Package frame provides a small column-oriented table used as the common
// input type for the cleaning helpers and transformers.
package frame

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Kind identifies the storage type of a column.
type Kind int

// Column kinds.
const (
	Float Kind = iota
	String
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case String:
		return "string"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Column is a single named column with a per-row missing mask.
// Exactly one of Floats or Strings is populated, matching Kind.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
	Missing []bool
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	if c.Kind == Float {
		return len(c.Floats)
	}
	return len(c.Strings)
}

// MissingCount returns the number of missing values in the column.
func (c *Column) MissingCount() int {
	var n int
	for _, m := range c.Missing {
		if m {
			n++
		}
	}
	return n
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	out.Floats = append([]float64(nil), c.Floats...)
	out.Strings = append([]string(nil), c.Strings...)
	out.Missing = append([]bool(nil), c.Missing...)
	return out
}

// Frame is an ordered collection of equal-length columns.
type Frame struct {
	cols  []*Column
	index map[string]int
}

// New builds a frame from columns. Columns must have unique names and equal
// lengths.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	n := -1
	for _, c := range cols {
		if _, dup := f.index[c.Name]; dup {
			return nil, eris.Errorf("frame: duplicate column name %q", c.Name)
		}
		if len(c.Missing) != c.Len() {
			return nil, eris.Errorf("frame: column %q missing mask length %d, want %d", c.Name, len(c.Missing), c.Len())
		}
		if n >= 0 && c.Len() != n {
			return nil, eris.Errorf("frame: column %q has %d rows, want %d", c.Name, c.Len(), n)
		}
		n = c.Len()
		f.index[c.Name] = len(f.cols)
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if len(f.cols) == 0 {
		return 0
	}
	return f.cols[0].Len()
}

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order.
func (f *Frame) Columns() []*Column { return f.cols }

// Column returns the named column.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, eris.Errorf("frame: no column %q", name)
	}
	return f.cols[i], nil
}

// Has reports whether the frame contains the named column.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Select returns a new frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c.clone())
	}
	return New(cols...)
}

// Drop returns a new frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if !f.Has(name) {
			return nil, eris.Errorf("frame: no column %q", name)
		}
		drop[name] = true
	}
	var cols []*Column
	for _, c := range f.cols {
		if !drop[c.Name] {
			cols = append(cols, c.clone())
		}
	}
	return New(cols...)
}

// Rename returns a new frame with the column renamed.
func (f *Frame) Rename(old, new string) (*Frame, error) {
	if !f.Has(old) {
		return nil, eris.Errorf("frame: no column %q", old)
	}
	if old != new && f.Has(new) {
		return nil, eris.Errorf("frame: column %q already exists", new)
	}
	cols := make([]*Column, 0, len(f.cols))
	for _, c := range f.cols {
		cc := c.clone()
		if cc.Name == old {
			cc.Name = new
		}
		cols = append(cols, cc)
	}
	return New(cols...)
}

// Anchor positions for Relocate.
const (
	Before = "before"
	After  = "after"
)

// Relocate returns a new frame with the named column moved before or after
// the anchor column.
func (f *Frame) Relocate(name, position, anchor string) (*Frame, error) {
	if position != Before && position != After {
		return nil, eris.Errorf("frame: relocate position must be %q or %q, got %q", Before, After, position)
	}
	moved, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if !f.Has(anchor) {
		return nil, eris.Errorf("frame: no column %q", anchor)
	}
	if name == anchor {
		return nil, eris.Errorf("frame: cannot relocate %q relative to itself", name)
	}

	cols := make([]*Column, 0, len(f.cols))
	for _, c := range f.cols {
		if c.Name == name {
			continue
		}
		if c.Name == anchor {
			if position == Before {
				cols = append(cols, moved.clone(), c.clone())
			} else {
				cols = append(cols, c.clone(), moved.clone())
			}
			continue
		}
		cols = append(cols, c.clone())
	}
	return New(cols...)
}

// AppendColumn returns a new frame with the column appended.
func (f *Frame) AppendColumn(c *Column) (*Frame, error) {
	cols := make([]*Column, 0, len(f.cols)+1)
	for _, existing := range f.cols {
		cols = append(cols, existing.clone())
	}
	cols = append(cols, c)
	return New(cols...)
}

// Matrix returns a dense numeric matrix of the named float columns, one
// column per name. It fails on string columns and on missing values, which
// transformers reject anyway.
func (f *Frame) Matrix(names ...string) (*mat.Dense, error) {
	if len(names) == 0 {
		for _, c := range f.cols {
			if c.Kind == Float {
				names = append(names, c.Name)
			}
		}
	}
	if len(names) == 0 {
		return nil, eris.New("frame: no numeric columns")
	}

	n := f.Len()
	if n == 0 {
		return nil, eris.New("frame: no rows to build a matrix from")
	}
	out := mat.NewDense(n, len(names), nil)
	for j, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Kind != Float {
			return nil, eris.Errorf("frame: column %q is not numeric", name)
		}
		for i := 0; i < n; i++ {
			if c.Missing[i] {
				return nil, eris.Errorf("frame: column %q contains missing values", name)
			}
			out.Set(i, j, c.Floats[i])
		}
	}
	return out, nil
}

// Records renders the frame as string records with a header row, suitable
// for CSV export. Missing values render as empty strings.
func (f *Frame) Records() [][]string {
	out := make([][]string, 0, f.Len()+1)
	out = append(out, f.Names())
	for i := 0; i < f.Len(); i++ {
		row := make([]string, len(f.cols))
		for j, c := range f.cols {
			if c.Missing[i] {
				row[j] = ""
				continue
			}
			if c.Kind == Float {
				row[j] = strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
			} else {
				row[j] = c.Strings[i]
			}
		}
		out = append(out, row)
	}
	return out
}
