package codeindex

import (
	"strings"

	"github.com/memengine/memengine/internal/memerr"
	"github.com/memengine/memengine/internal/store"
)

// RiskLevel is analyze_impact's coarse risk bucket.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ImpactReport is analyze_impact's return shape for a single resolved entity.
type ImpactReport struct {
	Entity          store.CodeEntityRow
	AffectedEntities []store.CodeEntityRow
	RiskScore       int
	RiskLevel       RiskLevel
	SuggestedChecks []string
}

var entityKindWeight = map[string]int{
	string(KindClass): 3, string(KindInterface): 3,
	string(KindFunction): 2,
	string(KindMethod):   1,
}

// AnalyzeImpact implements analyze_impact(entity_name): resolves the name
// to matching entities (exact qualified-name match, then bare-name match,
// then a substring fuzzy match) and, for each, scans the project's
// entities for any whose imports/inherits/calls reference it.
func (idx *Indexer) AnalyzeImpact(entityName string) ([]ImpactReport, error) {
	all, err := idx.st.AllEntities(idx.projectPath)
	if err != nil {
		return nil, err
	}

	matches := resolveEntityName(all, entityName)
	if len(matches) == 0 {
		return nil, memerr.New(memerr.NotFound, "codeindex.AnalyzeImpact", entityName)
	}

	reports := make([]ImpactReport, 0, len(matches))
	for _, m := range matches {
		reports = append(reports, buildImpactReport(m, all))
	}
	return reports, nil
}

func resolveEntityName(all []store.CodeEntityRow, name string) []store.CodeEntityRow {
	var exact, byName, fuzzy []store.CodeEntityRow
	lowerName := strings.ToLower(name)
	for _, e := range all {
		switch {
		case e.QualifiedName == name:
			exact = append(exact, e)
		case e.Name == name:
			byName = append(byName, e)
		case strings.Contains(strings.ToLower(e.QualifiedName), lowerName):
			fuzzy = append(fuzzy, e)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	if len(byName) > 0 {
		return byName
	}
	return fuzzy
}

func buildImpactReport(target store.CodeEntityRow, all []store.CodeEntityRow) ImpactReport {
	var affected []store.CodeEntityRow
	for _, e := range all {
		if e.ID == target.ID {
			continue
		}
		if containsString(e.Imports, target.QualifiedName) ||
			containsString(e.Inherits, target.Name) || containsString(e.Inherits, target.QualifiedName) ||
			containsString(e.Calls, target.Name) || containsString(e.Calls, target.QualifiedName) {
			affected = append(affected, e)
		}
	}
	sortEntitiesByPath(affected)

	score := entityKindWeight[target.Kind]
	files := uniqueFiles(affected)
	switch {
	case len(files) > 10:
		score += 4
	case len(files) > 5:
		score += 2
	}
	switch {
	case len(affected) > 20:
		score += 4
	case len(affected) > 10:
		score += 2
	}

	level := RiskLow
	switch {
	case score >= 8:
		level = RiskHigh
	case score >= 4:
		level = RiskMedium
	}

	checks := []string{"test the entity's own file"}
	if level == RiskHigh {
		checks = append(checks, "run full test suite")
	}
	limit := len(files)
	if limit > 5 {
		limit = 5
	}
	checks = append(checks, files[:limit]...)

	return ImpactReport{
		Entity: target, AffectedEntities: affected,
		RiskScore: score, RiskLevel: level, SuggestedChecks: checks,
	}
}
