// indexer.go implements the stable-id scheme, content-hash-driven
// incremental reindexing, and project walking for the code index. Grounded
// on a hash-compare skip-logic incremental scan and a skip-set directory
// walk, adapted to this package's id formula and return-shape contracts.
package codeindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/memengine/memengine/internal/hybrid"
	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/obslog"
	"github.com/memengine/memengine/internal/store"
)

// skipDirs is the hardcoded directory skip set from §4.H.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "__pycache__": {}, "dist": {}, "build": {},
	"venv": {}, ".venv": {}, ".memory-store": {}, ".idea": {}, ".vscode": {},
}

// defaultPatterns are the common source globs walked when index_project is
// called without explicit patterns.
var defaultPatterns = []string{"*.go", "*.py"}

// Indexer owns a project's code entity index: parsing via a Registry,
// persistence via a Store, and a lexical index kept in sync for find_code.
type Indexer struct {
	projectPath string
	registry    *Registry
	st          *store.Store
	lex         *lexical.Index
}

// New builds an Indexer and wires the lexical index's rebuild source.
func New(projectPath string, registry *Registry, st *store.Store, lex *lexical.Index) *Indexer {
	idx := &Indexer{projectPath: projectPath, registry: registry, st: st, lex: lex}
	lex.SetSource(func() []lexical.Doc {
		rows, err := st.AllEntities(projectPath)
		if err != nil {
			return nil
		}
		docs := make([]lexical.Doc, len(rows))
		for i, r := range rows {
			docs[i] = entityDoc(r)
		}
		return docs
	})
	return idx
}

// RebuildIndex implements rebuild_index()'s code-entity-side repair.
func (idx *Indexer) RebuildIndex() {
	idx.lex.RebuildIndex()
}

func entityDoc(r store.CodeEntityRow) lexical.Doc {
	return lexical.Doc{
		ID:      entityLexicalID(r.ID),
		Content: r.QualifiedName + " " + r.Signature + " " + r.Docstring,
		FilePath: r.FilePath,
	}
}

// entityLexicalID maps a string entity id into the lexical index's int64 id
// space (it indexes memories by int64 too); the first 8 bytes of the id's
// SHA-256, taken as a non-negative int64, give a stable, collision-resistant
// mapping without a second table.
func entityLexicalID(id string) int64 {
	sum := sha256.Sum256([]byte(id))
	v := int64(0)
	for i := 0; i < 8; i++ {
		v = v<<8 | int64(sum[i])
	}
	if v < 0 {
		v = -v
	}
	return v
}

// StableID computes the entity id: lowest 16 hex digits of
// SHA-256(project|relative_path|qualified_name|kind). Line numbers are
// deliberately excluded.
func StableID(project, relativePath, qualifiedName, kind string) string {
	h := sha256.Sum256([]byte(project + "|" + relativePath + "|" + qualifiedName + "|" + kind))
	full := hex.EncodeToString(h[:])
	return full[len(full)-16:]
}

func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// blacklistedExt rejects build/vendor/VCS artifact extensions outright,
// ahead of the language-pack extension check.
var blacklistedExt = map[string]struct{}{
	".min.js": {}, ".lock": {}, ".pyc": {}, ".so": {}, ".o": {}, ".exe": {},
}

// IndexFileIfChanged implements index_file_if_changed(path, force).
// relPath must already be project-relative.
func (idx *Indexer) IndexFileIfChanged(ctx context.Context, relPath string, force bool) (changed bool, entityCount int, err error) {
	ext := filepath.Ext(relPath)
	if _, blocked := blacklistedExt[ext]; blocked {
		return false, 0, nil
	}
	pack := idx.registry.For(ext)
	if pack == nil {
		return false, 0, nil
	}

	content, err := os.ReadFile(filepath.Join(idx.projectPath, relPath))
	if err != nil {
		return false, 0, err
	}
	hash := contentHash(content)

	if !force {
		existing, err := idx.st.GetFileHash(idx.projectPath, relPath)
		if err == nil && existing.ContentHash == hash {
			return false, 0, nil
		}
	}

	entities, err := pack.Parse(relPath, content)
	if err != nil {
		obslog.Get(obslog.CategoryCode).Warn("IndexFileIfChanged: parse failed for %s: %v", relPath, err)
		return false, 0, err
	}

	previous, err := idx.st.EntitiesForFile(idx.projectPath, relPath)
	if err != nil {
		return false, 0, err
	}
	previousIDs := make(map[string]struct{}, len(previous))
	for _, p := range previous {
		previousIDs[p.ID] = struct{}{}
	}

	currentIDs := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		id := StableID(idx.projectPath, relPath, e.QualifiedName, string(e.Kind))
		currentIDs[id] = struct{}{}
		row := store.CodeEntityRow{
			ID: id, ProjectPath: idx.projectPath, FilePath: relPath,
			QualifiedName: e.QualifiedName, Name: e.Name, Kind: string(e.Kind),
			LineStart: e.LineStart, LineEnd: e.LineEnd, Signature: e.Signature,
			Docstring: e.Docstring, Language: pack.Name(),
			Imports: e.Imports, Inherits: e.Inherits, Calls: e.Calls,
		}
		if err := idx.st.UpsertCodeEntity(row); err != nil {
			return false, 0, err
		}
		idx.lex.Upsert(entityDoc(row))
	}

	var removed []string
	for id := range previousIDs {
		if _, ok := currentIDs[id]; !ok {
			removed = append(removed, id)
			idx.lex.Delete(entityLexicalID(id))
		}
	}
	if len(removed) > 0 {
		if err := idx.st.DeleteCodeEntitiesByIDs(removed); err != nil {
			return false, 0, err
		}
	}

	if err := idx.st.UpsertFileHash(store.FileHashRow{ProjectPath: idx.projectPath, FilePath: relPath, ContentHash: hash}); err != nil {
		return false, 0, err
	}

	return true, len(entities), nil
}

// ProjectIndexStats is index_project's return shape.
type ProjectIndexStats struct {
	FilesChecked   int
	FilesChanged   int
	FilesUnchanged int
	EntitiesIndexed int
}

// IndexProject implements index_project(patterns, force): walks the
// project skipping §4.H's hardcoded directories, indexes every matching
// file, then deletes entity/hash rows for files no longer present on disk.
func (idx *Indexer) IndexProject(ctx context.Context, patterns []string, force bool) (ProjectIndexStats, error) {
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}

	var stats ProjectIndexStats
	seen := make(map[string]struct{})

	err := filepath.WalkDir(idx.projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip && path != idx.projectPath {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(idx.projectPath, path)
		if err != nil {
			return nil
		}
		if !matchesAny(patterns, filepath.Base(rel)) {
			return nil
		}

		seen[rel] = struct{}{}
		stats.FilesChecked++
		changed, count, err := idx.IndexFileIfChanged(ctx, rel, force)
		if err != nil {
			obslog.Get(obslog.CategoryCode).Warn("IndexProject: %s: %v", rel, err)
			return nil
		}
		if changed {
			stats.FilesChanged++
			stats.EntitiesIndexed += count
		} else {
			stats.FilesUnchanged++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	hashes, err := idx.st.AllFileHashes(idx.projectPath)
	if err != nil {
		return stats, err
	}
	for _, h := range hashes {
		if _, ok := seen[h.FilePath]; ok {
			continue
		}
		entities, err := idx.st.EntitiesForFile(idx.projectPath, h.FilePath)
		if err == nil {
			ids := make([]string, len(entities))
			for i, e := range entities {
				ids[i] = e.ID
				idx.lex.Delete(entityLexicalID(e.ID))
			}
			_ = idx.st.DeleteCodeEntitiesByIDs(ids)
		}
		_ = idx.st.DeleteFileHash(idx.projectPath, h.FilePath)
	}

	return stats, nil
}

func matchesAny(patterns []string, base string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// FindCode implements find_code(query, limit): hybrid search over entities
// (document = qualified_name + signature + docstring) without outcome/pin
// adjustments, with the standard per-file diversity cap.
func (idx *Indexer) FindCode(ctx context.Context, query string, limit int) ([]store.CodeEntityRow, error) {
	rows, err := idx.st.AllEntities(idx.projectPath)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.CodeEntityRow, len(rows))
	for _, r := range rows {
		byID[entityLexicalID(r.ID)] = r
	}

	lookup := func(id int64) (hybrid.Candidate, bool) {
		r, ok := byID[id]
		if !ok {
			return hybrid.Candidate{}, false
		}
		return hybrid.Candidate{ID: id, FilePath: r.FilePath}, true
	}
	p := &hybrid.Pipeline{Lexical: idx.lex, Lookup: lookup}
	hits := p.Search(ctx, hybrid.Query{Text: query, Limit: limit, SkipAdjustments: true})

	out := make([]store.CodeEntityRow, 0, len(hits))
	for _, h := range hits {
		if r, ok := byID[h.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// sortEntitiesByPath is a small stable-ordering helper used by impact
// analysis when presenting affected files deterministically.
func sortEntitiesByPath(entities []store.CodeEntityRow) {
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].FilePath != entities[j].FilePath {
			return entities[i].FilePath < entities[j].FilePath
		}
		return entities[i].QualifiedName < entities[j].QualifiedName
	})
}

func uniqueFiles(entities []store.CodeEntityRow) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, e := range entities {
		if _, ok := seen[e.FilePath]; !ok {
			seen[e.FilePath] = struct{}{}
			files = append(files, e.FilePath)
		}
	}
	sort.Strings(files)
	return files
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}
