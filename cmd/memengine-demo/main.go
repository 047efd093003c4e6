// Command memengine-demo is a minimal illustrative driver over the memory
// engine core, not a production transport. It exists to exercise the
// engine end-to-end from a terminal the way a root command exercises its
// own core, trimmed down to a handful of subcommands instead of a full
// CLI surface.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memengine/memengine/internal/codeindex"
	"github.com/memengine/memengine/internal/config"
	"github.com/memengine/memengine/internal/engine"
	"github.com/memengine/memengine/internal/gate"
	"github.com/memengine/memengine/internal/graph"
	"github.com/memengine/memengine/internal/lexical"
	"github.com/memengine/memengine/internal/memory"
	"github.com/memengine/memengine/internal/obslog"
	"github.com/memengine/memengine/internal/rules"
	"github.com/memengine/memengine/internal/store"
	"github.com/memengine/memengine/internal/vectorindex"
)

var projectRoot string

func buildEngine() (*engine.Engine, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(root, ".memory-store", "config.yaml"), root)
	if err != nil {
		return nil, err
	}
	categories := make(map[obslog.Category]bool, len(cfg.Logging.Categories))
	for name, on := range cfg.Logging.Categories {
		categories[obslog.Category(name)] = on
	}
	if err := obslog.Init(root, cfg.Logging.DebugMode, categories); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.Path, root)
	if err != nil {
		return nil, err
	}

	gr := graph.New(st)
	mgr := memory.New(st, lexical.New(), vectorindex.New(), gr)
	idx := codeindex.New(root, codeindex.NewRegistry(codeindex.NewGoPack(), codeindex.NewPythonPack()), st, lexical.New())
	ruleEng := rules.New(st, lexical.New())
	gt := gate.New(0)

	e := engine.New(root, st, mgr, gr, idx, ruleEng, gt)
	e.SetReflectionWorker(memory.NewReflectionWorker(mgr, memory.ReflectionConfig{
		Enabled:  cfg.Reflection.Enabled,
		Interval: cfg.ReflectionInterval(),
		Limit:    cfg.Reflection.Limit,
	}))
	return e, nil
}

func main() {
	root := &cobra.Command{
		Use:   "memengine-demo",
		Short: "Illustrative CLI over the per-project semantic memory engine",
	}
	root.PersistentFlags().StringVarP(&projectRoot, "project", "p", ".", "Project root directory")

	root.AddCommand(briefingCmd(), recordCmd(), recallCmd(), indexCmd(), findCodeCmd(), checkRulesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func briefingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "briefing",
		Short: "Print a project briefing and register the initialization token",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			result, err := e.Briefing(context.Background(), nil)
			if err != nil {
				return err
			}
			fmt.Printf("recent memories: %d\n", len(result.RecentMemories))
			fmt.Printf("active warnings: %d\n", len(result.ActiveWarnings))
			fmt.Printf("failed approaches: %d\n", len(result.FailedApproaches))
			fmt.Printf("rules: %d\n", result.RuleCount)
			fmt.Printf("storage: %+v\n", result.Storage)
			return nil
		},
	}
}

func recordCmd() *cobra.Command {
	var category, filePath string
	cmd := &cobra.Command{
		Use:   "record [content]",
		Short: "Record a memory (runs briefing + context-check first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := context.Background()
			if _, err := e.Briefing(ctx, nil); err != nil {
				return err
			}
			if _, err := e.ContextCheck(ctx, args[0]); err != nil {
				return err
			}
			res, err := e.Record(ctx, memory.RecordInput{
				Category: memory.Category(category), Content: args[0], FilePath: filePath,
			})
			if err != nil {
				return err
			}
			fmt.Printf("recorded memory %d (%d conflicts)\n", res.ID, len(res.Conflicts))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "learning", "decision|pattern|warning|learning")
	cmd.Flags().StringVar(&filePath, "file", "", "optional file scope")
	return cmd
}

func recallCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recall [topic]",
		Short: "Recall memories matching a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			groups, err := e.Recall(context.Background(), args[0], memory.RecallOptions{Limit: limit})
			if err != nil {
				return err
			}
			for _, g := range groups {
				fmt.Printf("%s:\n", g.Category)
				for _, r := range g.Results {
					fmt.Printf("  #%d score=%.3f\n", r.ID, r.Score)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "max results")
	return cmd
}

func indexCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the project's source files",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			stats, err := e.IndexProject(context.Background(), nil, force)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reindex unchanged files too")
	return cmd
}

func findCodeCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "find-code [query]",
		Short: "Search indexed code entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			entities, err := e.FindCode(context.Background(), args[0], limit)
			if err != nil {
				return err
			}
			for _, ent := range entities {
				fmt.Printf("%s  %s:%d\n", ent.QualifiedName, ent.FilePath, ent.LineStart)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "max results")
	return cmd
}

func checkRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-rules [action]",
		Short: "Check configured rules against a planned action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			result, err := e.CheckRules(context.Background(), args[0], "")
			if err != nil {
				return err
			}
			for _, m := range result.Matches {
				fmt.Printf("[priority %d, score %.3f] %s\n", m.Rule.Priority, m.Score, m.Rule.Trigger)
			}
			for _, w := range result.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
			return nil
		},
	}
}
