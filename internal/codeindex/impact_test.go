package codeindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeImpactFindsCallers(t *testing.T) {
	idx, dir := newTestIndexer(t)
	writeFile(t, dir, "a.go", `package pkg

func Helper() {}

func Caller() {
	Helper()
}
`)
	_, _, err := idx.IndexFileIfChanged(context.Background(), "a.go", false)
	require.NoError(t, err)

	reports, err := idx.AnalyzeImpact("Helper")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.NotEmpty(t, reports[0].AffectedEntities)
}

func TestAnalyzeImpactUnknownNameReturnsNotFound(t *testing.T) {
	idx, _ := newTestIndexer(t)
	_, err := idx.AnalyzeImpact("DoesNotExist")
	require.Error(t, err)
}

func TestRiskLevelEscalatesWithAffectedCount(t *testing.T) {
	idx, dir := newTestIndexer(t)
	var src = "package pkg\n\nfunc Helper() {}\n\n"
	for i := 0; i < 25; i++ {
		src += "func Caller" + string(rune('a'+i)) + "() { Helper() }\n"
	}
	writeFile(t, dir, "a.go", src)
	_, _, err := idx.IndexFileIfChanged(context.Background(), "a.go", false)
	require.NoError(t, err)

	reports, err := idx.AnalyzeImpact("Helper")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, RiskMedium, reports[0].RiskLevel)
}
