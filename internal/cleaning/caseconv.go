package cleaning

import (
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/halcyon-data/mlprep/internal/frame"
)

// Case selects a case-conversion style.
type Case string

// Supported case styles.
const (
	Lower Case = "lower"
	Upper Case = "upper"
	Title Case = "title"
)

func caser(kind Case) (cases.Caser, error) {
	switch kind {
	case Lower:
		return cases.Lower(language.Und), nil
	case Upper:
		return cases.Upper(language.Und), nil
	case Title:
		return cases.Title(language.Und), nil
	}
	return cases.Caser{}, eris.Errorf("cleaning: unknown case %q", kind)
}

// CaseConvert returns a new frame with the values of the named string
// columns converted to the given case. With no names, every string column is
// converted. Naming a non-string column is an error.
func CaseConvert(f *frame.Frame, kind Case, names ...string) (*frame.Frame, error) {
	cs, err := caser(kind)
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		for _, c := range f.Columns() {
			if c.Kind == frame.String {
				names = append(names, c.Name)
			}
		}
	}

	convert := make(map[string]bool, len(names))
	for _, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Kind != frame.String {
			return nil, eris.Errorf("cleaning: column %q is not a string column", name)
		}
		convert[name] = true
	}

	cols := make([]*frame.Column, 0, f.Width())
	for _, c := range f.Columns() {
		if !convert[c.Name] {
			cols = append(cols, c)
			continue
		}
		cc := &frame.Column{
			Name:    c.Name,
			Kind:    frame.String,
			Strings: make([]string, len(c.Strings)),
			Missing: append([]bool(nil), c.Missing...),
		}
		for i, v := range c.Strings {
			if c.Missing[i] {
				continue
			}
			cc.Strings[i] = cs.String(v)
		}
		cols = append(cols, cc)
	}
	return frame.New(cols...)
}

// CaseConvertNames returns a new frame with every column name converted to
// the given case.
func CaseConvertNames(f *frame.Frame, kind Case) (*frame.Frame, error) {
	cs, err := caser(kind)
	if err != nil {
		return nil, err
	}
	out := f
	for _, name := range f.Names() {
		converted := cs.String(name)
		if converted == name {
			continue
		}
		next, err := out.Rename(name, converted)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}
