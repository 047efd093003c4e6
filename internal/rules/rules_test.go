package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	st, err := store.Open(":memory:", "/tmp/project")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, lexical.New())
}

func TestAddRuleRejectsEmptyTrigger(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule("", nil, nil, nil, nil, 0)
	require.Error(t, err)
}

func TestCheckRulesMatchesAboveThreshold(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule("modifying database migration files", []string{"write a rollback script"}, nil, nil, nil, 5)
	require.NoError(t, err)

	result, err := e.CheckRules(context.Background(), "modifying database migration files in the schema package", "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)
	require.Contains(t, result.MustDo, "write a rollback script")
}

func TestCheckRulesRanksByPriorityThenScore(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddRule("editing authentication code", []string{"low priority"}, nil, nil, nil, 1)
	require.NoError(t, err)
	_, err = e.AddRule("editing authentication code", []string{"high priority"}, nil, nil, nil, 10)
	require.NoError(t, err)

	result, err := e.CheckRules(context.Background(), "editing authentication code", "")
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	require.Equal(t, 10, result.Matches[0].Rule.Priority)
}

func TestCheckRulesExcludesDisabledRules(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.AddRule("deleting production data", []string{"confirm twice"}, nil, nil, nil, 5)
	require.NoError(t, err)

	row, err := e.st.GetRule(id)
	require.NoError(t, err)
	row.Enabled = false
	require.NoError(t, e.UpdateRule(row))

	result, err := e.CheckRules(context.Background(), "deleting production data", "")
	require.NoError(t, err)
	require.Empty(t, result.Matches)
}
