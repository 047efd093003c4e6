package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memengine/memengine/internal/memerr"
)

func TestRequiresInitializationFailsBeforeBriefing(t *testing.T) {
	g := New(0)
	err := g.RequiresInitialization("/tmp/project")
	require.Error(t, err)
	require.Equal(t, memerr.InitRequired, memerr.CodeOf(err))
}

func TestInitializeUnblocksRequiresInitialization(t *testing.T) {
	g := New(0)
	g.Initialize("/tmp/project")
	require.NoError(t, g.RequiresInitialization("/tmp/project"))
}

func TestRequiresContextFailsWithoutToken(t *testing.T) {
	g := New(0)
	g.Initialize("/tmp/project")
	err := g.RequiresContext("/tmp/project")
	require.Error(t, err)
	require.Equal(t, memerr.ContextCheckRequired, memerr.CodeOf(err))
}

func TestIssueContextTokenUnblocksRequiresContext(t *testing.T) {
	g := New(0)
	g.Initialize("/tmp/project")
	token, _ := g.IssueContextToken("/tmp/project", "refactoring the auth module")
	require.NotEmpty(t, token)
	require.NoError(t, g.RequiresContext("/tmp/project"))
}

func TestContextTokenExpiresAfterTTL(t *testing.T) {
	g := New(10 * time.Millisecond)
	g.Initialize("/tmp/project")
	g.IssueContextToken("/tmp/project", "refactoring the auth module")
	time.Sleep(30 * time.Millisecond)
	err := g.RequiresContext("/tmp/project")
	require.Error(t, err)
	require.Equal(t, memerr.ContextCheckRequired, memerr.CodeOf(err))
}

func TestRequiresContextStillRequiresInitialization(t *testing.T) {
	g := New(0)
	err := g.RequiresContext("/tmp/project")
	require.Error(t, err)
	require.Equal(t, memerr.InitRequired, memerr.CodeOf(err))
}

func TestTokensAreKeyedByProject(t *testing.T) {
	g := New(0)
	g.Initialize("/tmp/project-a")
	g.IssueContextToken("/tmp/project-a", "change something")

	require.NoError(t, g.RequiresContext("/tmp/project-a"))
	err := g.RequiresContext("/tmp/project-b")
	require.Error(t, err)
}
