package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-data/mlprep/internal/frame"
)

// resetCleanFlags restores the clean command's flag variables after a test.
func resetCleanFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		cleanFixNames = false
		cleanCase = ""
		cleanCaseCols = nil
		cleanCaseNames = false
		cleanRelocate = ""
		cleanBefore = ""
		cleanAfter = ""
		cleanDropDupes = false
		cleanOutput = ""
	})
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCleanCmd_FixNames(t *testing.T) {
	resetCleanFlags(t)

	in := writeTempCSV(t, "price ($),Sale Date,123id\n10,2024-01-01,a\n20,2024-02-01,b\n")
	out := filepath.Join(t.TempDir(), "out.csv")
	cleanFixNames = true
	cleanOutput = out

	require.NoError(t, cleanCmd.RunE(cleanCmd, []string{in}))

	f, err := frame.Load(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "sale_date", "id"}, f.Names())
	assert.Equal(t, 2, f.Len())
}

func TestCleanCmd_RelocateAndDedupe(t *testing.T) {
	resetCleanFlags(t)

	in := writeTempCSV(t, "a,b,c\n1,x,7\n1,x,7\n2,y,8\n")
	out := filepath.Join(t.TempDir(), "out.csv")
	cleanRelocate = "c"
	cleanBefore = "a"
	cleanDropDupes = true
	cleanOutput = out

	require.NoError(t, cleanCmd.RunE(cleanCmd, []string{in}))

	f, err := frame.Load(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, f.Names())
	assert.Equal(t, 2, f.Len())
}

func TestCleanCmd_RelocateNeedsAnchor(t *testing.T) {
	resetCleanFlags(t)

	in := writeTempCSV(t, "a,b\n1,2\n")
	cleanRelocate = "a"

	err := cleanCmd.RunE(cleanCmd, []string{in})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--before or --after")
}

func TestCleanCmd_CaseConvert(t *testing.T) {
	resetCleanFlags(t)

	in := writeTempCSV(t, "city\nnew york\nboston\n")
	out := filepath.Join(t.TempDir(), "out.csv")
	cleanCase = "upper"
	cleanOutput = out

	require.NoError(t, cleanCmd.RunE(cleanCmd, []string{in}))

	f, err := frame.Load(out)
	require.NoError(t, err)
	col, err := f.Column("city")
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW YORK", "BOSTON"}, col.Strings)
}
