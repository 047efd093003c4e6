// Package rules implements a rule store whose triggers are matched against
// action descriptions through the same hybrid retrieval pipeline used for
// memory recall. Grounded on a priority-ranked guidance-list pattern keyed
// by trigger keywords, adapted to run its matching through internal/hybrid
// instead of a standalone keyword-overlap scorer.
package rules

import (
	"context"
	"sort"

	"github.com/memengine/memengine/internal/analyzer"
	"github.com/memengine/memengine/internal/hybrid"
	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/memerr"
	"github.com/memengine/memengine/internal/store"
)

// DefaultMatchThreshold is the minimum hybrid score for a rule to match.
const DefaultMatchThreshold = 0.35

// DefaultTopN bounds check_rules' result count.
const DefaultTopN = 5

// Rule is the engine's view of store.RuleRow.
type Rule struct {
	ID       int64
	Trigger  string
	MustDo   []string
	MustNot  []string
	AskFirst []string
	Warnings []string
	Priority int
	Enabled  bool
}

// Match pairs a matched rule with its hybrid score.
type Match struct {
	Rule  Rule
	Score float64
}

// CheckResult is check_rules' aggregated output.
type CheckResult struct {
	Matches  []Match
	MustDo   []string
	MustNot  []string
	AskFirst []string
	Warnings []string
}

// Engine is the rule CRUD and matching surface over a Store and its own
// lexical index (rule triggers are a separate document space from memories).
type Engine struct {
	st  *store.Store
	lex *lexical.Index
}

// New builds an Engine and wires the lexical index's rebuild source.
func New(st *store.Store, lex *lexical.Index) *Engine {
	e := &Engine{st: st, lex: lex}
	lex.SetSource(func() []lexical.Doc {
		rows, err := st.ListRules()
		if err != nil {
			return nil
		}
		docs := make([]lexical.Doc, len(rows))
		for i, r := range rows {
			docs[i] = ruleDoc(r)
		}
		return docs
	})
	return e
}

// RebuildIndex implements rebuild_index()'s rule-side repair.
func (e *Engine) RebuildIndex() {
	e.lex.RebuildIndex()
}

func ruleDoc(r store.RuleRow) lexical.Doc {
	return lexical.Doc{ID: r.ID, Content: r.Trigger}
}

func toRule(r store.RuleRow) Rule {
	return Rule{
		ID: r.ID, Trigger: r.Trigger, MustDo: r.MustDo, MustNot: r.MustNot,
		AskFirst: r.AskFirst, Warnings: r.Warnings, Priority: r.Priority, Enabled: r.Enabled,
	}
}

// AddRule implements add_rule: analyzes the trigger's keywords and indexes it.
func (e *Engine) AddRule(trigger string, mustDo, mustNot, askFirst, warnings []string, priority int) (int64, error) {
	if trigger == "" {
		return 0, memerr.New(memerr.InvalidInput, "rules.AddRule", "trigger must not be empty")
	}
	row := store.RuleRow{
		Trigger: trigger, Keywords: analyzer.Analyze(trigger).Keywords,
		MustDo: mustDo, MustNot: mustNot, AskFirst: askFirst, Warnings: warnings,
		Priority: priority, Enabled: true,
	}
	id, err := e.st.InsertRule(row)
	if err != nil {
		return 0, err
	}
	row.ID = id
	e.lex.Upsert(ruleDoc(row))
	return id, nil
}

// UpdateRule implements update_rule: re-analyzes keywords and reindexes
// whenever the trigger changes.
func (e *Engine) UpdateRule(row store.RuleRow) error {
	row.Keywords = analyzer.Analyze(row.Trigger).Keywords
	if err := e.st.UpdateRule(row); err != nil {
		return err
	}
	e.lex.Upsert(ruleDoc(row))
	return nil
}

// ListRules implements list_rules: ordered priority DESC (delegated to the store).
func (e *Engine) ListRules() ([]Rule, error) {
	rows, err := e.st.ListRules()
	if err != nil {
		return nil, err
	}
	out := make([]Rule, len(rows))
	for i, r := range rows {
		out[i] = toRule(r)
	}
	return out, nil
}

// CheckRules implements check_rules(action, context): matches action (plus
// optional context text) against every enabled rule's trigger via the
// hybrid pipeline, keeping only scores above DefaultMatchThreshold, ranked
// by priority DESC then score DESC, deduplicated and capped at topN.
func (e *Engine) CheckRules(ctx context.Context, action, extraContext string) (CheckResult, error) {
	query := action
	if extraContext != "" {
		query += " " + extraContext
	}

	lookup := func(id int64) (hybrid.Candidate, bool) { return hybrid.Candidate{ID: id}, true }
	p := &hybrid.Pipeline{Lexical: e.lex, Lookup: lookup}
	hits := p.Search(ctx, hybrid.Query{Text: query, Limit: 50, SkipAdjustments: true})

	rows, err := e.st.ListRules()
	if err != nil {
		return CheckResult{}, err
	}
	byID := make(map[int64]store.RuleRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	var matches []Match
	for _, h := range hits {
		if h.Score < DefaultMatchThreshold {
			continue
		}
		row, ok := byID[h.ID]
		if !ok || !row.Enabled {
			continue
		}
		matches = append(matches, Match{Rule: toRule(row), Score: h.Score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Rule.Priority != matches[j].Rule.Priority {
			return matches[i].Rule.Priority > matches[j].Rule.Priority
		}
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > DefaultTopN {
		matches = matches[:DefaultTopN]
	}

	result := CheckResult{Matches: matches}
	for _, m := range matches {
		result.MustDo = append(result.MustDo, m.Rule.MustDo...)
		result.MustNot = append(result.MustNot, m.Rule.MustNot...)
		result.AskFirst = append(result.AskFirst, m.Rule.AskFirst...)
		result.Warnings = append(result.Warnings, m.Rule.Warnings...)
	}
	return result, nil
}
