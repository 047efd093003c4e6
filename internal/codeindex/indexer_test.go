package codeindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/store"
)

func newTestIndexer(t *testing.T) (*Indexer, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(":memory:", dir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := NewRegistry(NewGoPack())
	return New(dir, registry, st, lexical.New()), dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestIndexFileIfChangedSkipsUnchangedContent(t *testing.T) {
	idx, dir := newTestIndexer(t)
	writeFile(t, dir, "a.go", sampleGoSource)

	changed, count, err := idx.IndexFileIfChanged(context.Background(), "a.go", false)
	require.NoError(t, err)
	require.True(t, changed)
	require.Greater(t, count, 0)

	changed, _, err = idx.IndexFileIfChanged(context.Background(), "a.go", false)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestIndexFileIfChangedForceReindexes(t *testing.T) {
	idx, dir := newTestIndexer(t)
	writeFile(t, dir, "a.go", sampleGoSource)

	_, _, err := idx.IndexFileIfChanged(context.Background(), "a.go", false)
	require.NoError(t, err)

	changed, _, err := idx.IndexFileIfChanged(context.Background(), "a.go", true)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestIndexFileIfChangedDiffsRemovedEntities(t *testing.T) {
	idx, dir := newTestIndexer(t)
	writeFile(t, dir, "a.go", sampleGoSource)
	_, _, err := idx.IndexFileIfChanged(context.Background(), "a.go", false)
	require.NoError(t, err)

	entities, err := idx.st.EntitiesForFile(dir, "a.go")
	require.NoError(t, err)
	require.NotEmpty(t, entities)

	writeFile(t, dir, "a.go", "package widgets\n\nfunc Only() {}\n")
	_, _, err = idx.IndexFileIfChanged(context.Background(), "a.go", false)
	require.NoError(t, err)

	entities, err = idx.st.EntitiesForFile(dir, "a.go")
	require.NoError(t, err)
	for _, e := range entities {
		require.NotEqual(t, "widgets.Widget", e.QualifiedName)
	}
}

func TestIndexProjectSkipsHardcodedDirectories(t *testing.T) {
	idx, dir := newTestIndexer(t)
	writeFile(t, dir, "main.go", sampleGoSource)
	writeFile(t, dir, "node_modules/ignored.go", sampleGoSource)

	stats, err := idx.IndexProject(context.Background(), nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesChecked)
}

func TestIndexProjectRemovesEntitiesForDeletedFiles(t *testing.T) {
	idx, dir := newTestIndexer(t)
	writeFile(t, dir, "a.go", sampleGoSource)

	_, err := idx.IndexProject(context.Background(), nil, false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.go")))
	_, err = idx.IndexProject(context.Background(), nil, false)
	require.NoError(t, err)

	entities, err := idx.st.EntitiesForFile(dir, "a.go")
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestFindCodeReturnsMatchingEntity(t *testing.T) {
	idx, dir := newTestIndexer(t)
	writeFile(t, dir, "a.go", sampleGoSource)
	_, _, err := idx.IndexFileIfChanged(context.Background(), "a.go", false)
	require.NoError(t, err)

	results, err := idx.FindCode(context.Background(), "Widget Render", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestFindCodeCapsHitsPerFile(t *testing.T) {
	idx, dir := newTestIndexer(t)
	writeFile(t, dir, "crowded.go", `package crowded

func GadgetOne() { gadget() }
func GadgetTwo() { gadget() }
func GadgetThree() { gadget() }
func GadgetFour() { gadget() }
func gadget() {}
`)
	_, _, err := idx.IndexFileIfChanged(context.Background(), "crowded.go", false)
	require.NoError(t, err)

	results, err := idx.FindCode(context.Background(), "gadget", 10)
	require.NoError(t, err)

	perFile := make(map[string]int)
	for _, r := range results {
		perFile[r.FilePath]++
	}
	for path, count := range perFile {
		require.LessOrEqualf(t, count, 3, "file %s returned %d hits, want at most the diversity cap", path, count)
	}
}
