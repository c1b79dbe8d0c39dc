/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/showplan/internal/config"
	"github.com/jacobarthurs/showplan/internal/planset"
)

func writePlanSet(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "plans.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("<ShowPlanXML/>"), 0644))
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat("text"))
	assert.NoError(t, validateFormat("json"))
	assert.Error(t, validateFormat("xml"))
}

func TestTargetDisplayName(t *testing.T) {
	assert.Equal(t, "Version 1", target{input: "a.sqlplan", name: "Version 1"}.displayName())
	assert.Equal(t, "a.sqlplan", target{input: "/tmp/a.sqlplan"}.displayName())
	assert.Equal(t, "stdin", target{input: "-"}.displayName())
}

func TestAnalyzeTargets_Args(t *testing.T) {
	r := &run{cfg: config.Default(t.TempDir())}

	targets, source, err := analyzeTargets(r, []string{"a.sqlplan"}, "")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "a.sqlplan", targets[0].input)
	assert.Equal(t, "a.sqlplan", source)

	targets, source, err = analyzeTargets(r, []string{"a.sqlplan", "b.sqlplan"}, "")
	require.NoError(t, err)
	assert.Len(t, targets, 2)
	assert.Empty(t, source)
}

func TestAnalyzeTargets_PlanSetSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "v1.sqlplan")
	touch(t, present)

	body := `[
  {"Name": "Version 1", "FullPath": "` + filepath.ToSlash(present) + `", "Description": "first", "Active": true},
  {"Name": "Version 2", "FullPath": "` + filepath.ToSlash(filepath.Join(dir, "missing.sqlplan")) + `", "Active": true},
  {"Name": "Version 3", "FullPath": "` + filepath.ToSlash(present) + `", "Active": false}
]`
	path := writePlanSet(t, dir, body)
	r := &run{cfg: config.Default(dir)}

	targets, source, err := analyzeTargets(r, nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, source)
	require.Len(t, targets, 1)
	assert.Equal(t, "Version 1", targets[0].name)
	assert.Equal(t, "first", targets[0].description)
}

func TestAnalyzeTargets_NoActivePlans(t *testing.T) {
	dir := t.TempDir()
	path := writePlanSet(t, dir, `[{"Name": "Off", "FullPath": "x.sqlplan", "Active": false}]`)
	r := &run{cfg: config.Default(dir)}

	_, _, err := analyzeTargets(r, nil, path)
	assert.ErrorIs(t, err, planset.ErrNotEnoughPlans)
}

func TestCompareTargets_Args(t *testing.T) {
	r := &run{cfg: config.Default(t.TempDir())}

	first, second, source, err := compareTargets(r, []string{"a.sqlplan", "-"}, "")
	require.NoError(t, err)
	assert.Equal(t, "a.sqlplan", first.input)
	assert.Equal(t, "plan 1: ", first.label)
	assert.Equal(t, "-", second.input)
	assert.Empty(t, source)
}

func TestCompareTargets_PlanSet(t *testing.T) {
	dir := t.TempDir()
	v1 := filepath.Join(dir, "v1.sqlplan")
	v2 := filepath.Join(dir, "v2.sqlplan")
	touch(t, v1)
	touch(t, v2)

	body := `[
  {"Name": "Inactive", "FullPath": "` + filepath.ToSlash(v1) + `", "Active": false},
  {"Name": "Version 1", "FullPath": "` + filepath.ToSlash(v1) + `", "Active": true},
  {"Name": "Version 2", "FullPath": "` + filepath.ToSlash(v2) + `", "Active": true}
]`
	path := writePlanSet(t, dir, body)
	r := &run{cfg: config.Default(dir)}

	first, second, source, err := compareTargets(r, nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Equal(t, "Version 1", first.name)
	assert.Equal(t, "Version 2", second.name)
}

func TestCompareTargets_MissingFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	v1 := filepath.Join(dir, "v1.sqlplan")
	touch(t, v1)

	body := `[
  {"Name": "Version 1", "FullPath": "` + filepath.ToSlash(v1) + `", "Active": true},
  {"Name": "Version 2", "FullPath": "` + filepath.ToSlash(filepath.Join(dir, "gone.sqlplan")) + `", "Active": true}
]`
	path := writePlanSet(t, dir, body)
	r := &run{cfg: config.Default(dir)}

	_, _, _, err := compareTargets(r, nil, path)
	assert.Error(t, err)
}

func TestAnalyzeTargets_NoPlanSetPastes(t *testing.T) {
	r := &run{cfg: config.Default(t.TempDir())}

	targets, source, err := analyzeTargets(r, nil, "")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Empty(t, targets[0].input)
	assert.Empty(t, source)
}

func TestCompareTargets_NoPlanSetPastes(t *testing.T) {
	r := &run{cfg: config.Default(t.TempDir())}

	first, second, source, err := compareTargets(r, nil, "")
	require.NoError(t, err)
	assert.Empty(t, first.input)
	assert.Equal(t, "plan 2: ", second.label)
	assert.Empty(t, source)
}

func TestCheckStdinReads(t *testing.T) {
	orig := stdinIsTerminal
	t.Cleanup(func() { stdinIsTerminal = orig })

	stdinIsTerminal = func() bool { return false }
	assert.NoError(t, checkStdinReads(target{input: "-"}, target{input: "b.sqlplan"}))
	assert.NoError(t, checkStdinReads(target{}))
	assert.Error(t, checkStdinReads(target{label: "plan 1: "}, target{label: "plan 2: "}))
	assert.Error(t, checkStdinReads(target{input: "-"}, target{input: "-"}))

	stdinIsTerminal = func() bool { return true }
	assert.NoError(t, checkStdinReads(target{label: "plan 1: "}, target{label: "plan 2: "}))
}

func TestCompareTargets_PipedPasteRejected(t *testing.T) {
	orig := stdinIsTerminal
	t.Cleanup(func() { stdinIsTerminal = orig })
	stdinIsTerminal = func() bool { return false }

	r := &run{cfg: config.Default(t.TempDir())}
	first, second, _, err := compareTargets(r, nil, "")
	require.NoError(t, err)
	assert.Error(t, checkStdinReads(first, second))
}
