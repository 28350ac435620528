// Package cleaning provides data-cleaning helpers over frames: column-name
// validation and repair, missing-value reports, case conversion, frequency
// tables, and duplicate removal.
package cleaning

import (
	"fmt"
	"go/token"
	"regexp"
	"strings"

	"github.com/halcyon-data/mlprep/internal/frame"
)

// StartsWithDigitError reports column names that begin with a digit.
type StartsWithDigitError struct {
	Columns []string
}

func (e *StartsWithDigitError) Error() string {
	return fmt.Sprintf("columns %v must not start with digits", e.Columns)
}

// KeywordError reports column names that collide with language keywords.
type KeywordError struct {
	Columns []string
}

func (e *KeywordError) Error() string {
	return fmt.Sprintf("columns %v are keywords of the language and cannot be used as ordinary identifiers", e.Columns)
}

// InvalidIdentifierError reports column names that are not legal identifiers.
type InvalidIdentifierError struct {
	Columns []string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("columns %v are invalid identifiers", e.Columns)
}

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CheckColumnNames validates that every column name is a legal identifier.
// Names starting with a digit, keyword names, and names containing spaces or
// punctuation each produce a typed error listing the offending columns.
func CheckColumnNames(f *frame.Frame) error {
	var digits, keywords, invalid []string
	for _, name := range f.Names() {
		switch {
		case name != "" && name[0] >= '0' && name[0] <= '9':
			digits = append(digits, name)
		case token.IsKeyword(name):
			keywords = append(keywords, name)
		case !identifierRE.MatchString(name):
			invalid = append(invalid, name)
		}
	}
	if len(digits) > 0 {
		return &StartsWithDigitError{Columns: digits}
	}
	if len(keywords) > 0 {
		return &KeywordError{Columns: keywords}
	}
	if len(invalid) > 0 {
		return &InvalidIdentifierError{Columns: invalid}
	}
	return nil
}

var (
	invalidRunesRE = regexp.MustCompile(`[^A-Za-z0-9_ ]+`)
	leadingJunkRE  = regexp.MustCompile(`^[0-9_ ]+`)
	spacesRE       = regexp.MustCompile(` +`)
)

// CleanColumnName repairs a single column name: punctuation is stripped,
// leading digits removed, surrounding whitespace trimmed, interior runs of
// spaces replaced with a single underscore, and the result lowercased.
func CleanColumnName(name string) string {
	s := invalidRunesRE.ReplaceAllString(name, "")
	s = strings.TrimSpace(s)
	s = leadingJunkRE.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = spacesRE.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}

// CleanColumnNames returns a new frame with every column name repaired via
// CleanColumnName. Names that clean down to nothing become col_<position>.
func CleanColumnNames(f *frame.Frame) (*frame.Frame, error) {
	out := f
	for i, name := range f.Names() {
		cleaned := CleanColumnName(name)
		if cleaned == "" {
			cleaned = fmt.Sprintf("col_%d", i)
		}
		if cleaned == name {
			continue
		}
		next, err := out.Rename(name, cleaned)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}
