// Package main is the recall CLI: run scripted scenarios across memory
// configurations and inspect the memory store.
//
// Basic usage:
//
//	recall run --scenario demo.json --configs baseline,readwrite_cache
//	recall memory stats --db recall-state-readwrite.db
//	recall memory search --db recall-state-readwrite.db --query "last month"
//	recall maintenance --db recall-state-readwrite.db
//
// Configuration comes from recall.yaml (or $RECALL_CONFIG) plus environment
// variables; a .env file is honored when present:
//
//   - RECALL_PROVIDER: openai | anthropic | gemini | none
//   - RECALL_MODEL: model id for the selected provider
//   - OPENAI_API_KEY / OPENAI_BASE_URL, ANTHROPIC_API_KEY, GEMINI_API_KEY
//   - RECALL_STATE_DB: state database path prefix
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/recall/internal/config"
	"github.com/haasonsaas/recall/internal/observability"
	"github.com/haasonsaas/recall/internal/scenario"
	"github.com/haasonsaas/recall/internal/store"
	"github.com/haasonsaas/recall/pkg/models"
)

func main() {
	// Missing .env files are fine; explicit config errors are not.
	_ = godotenv.Load()

	var logLevel, logFormat string
	root := &cobra.Command{
		Use:           "recall",
		Short:         "Agentic-memory orchestrator for seller analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			observability.SetupLogging(observability.LogConfig{Level: logLevel, Format: logFormat})
		},
	}
	root.PersistentFlags().String("config", "", "path to recall.yaml")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text or json")

	root.AddCommand(newRunCmd(), newMemoryCmd(), newMaintenanceCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newRunCmd() *cobra.Command {
	var (
		scenarioPath string
		configsFlag  string
		repeat       int
		userID       string
		reportPath   string
		inMemory     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario across memory configurations and write the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sc, err := scenario.Load(scenarioPath)
			if err != nil {
				return err
			}

			var modes []models.MemoryMode
			for _, name := range strings.Split(configsFlag, ",") {
				mode := models.MemoryMode(strings.TrimSpace(name))
				switch mode {
				case models.ModeBaseline, models.ModeRead, models.ModeReadWrite, models.ModeReadWriteCache:
					modes = append(modes, mode)
				default:
					return fmt.Errorf("unknown config %q", name)
				}
			}

			client, err := cfg.NewLLMClient()
			if err != nil {
				return err
			}
			runLog, err := scenario.NewRunLogWriter(cfg.RunLogDir)
			if err != nil {
				return err
			}

			statePath := cfg.StateDB
			if inMemory {
				statePath = ""
			}
			report, err := scenario.NewRunner().Run(cmd.Context(), scenario.Options{
				Scenario:  sc,
				UserID:    userID,
				Configs:   modes,
				Repeat:    repeat,
				StatePath: statePath,
				Client:    client,
				RunLog:    runLog,
			})
			if err != nil {
				return err
			}

			if err := scenario.WriteReport(reportPath, report); err != nil {
				return err
			}
			for _, s := range report.Summaries {
				p90 := "n/a"
				if s.Aggregate.P90LatencyMs != nil {
					p90 = fmt.Sprintf("%dms", *s.Aggregate.P90LatencyMs)
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"%-16s avgQuality=%.3f accRate=%.2f toolCalls=%d cached=%d p90=%s\n",
					s.Config, s.Aggregate.AvgQuality, s.Aggregate.QuestionLevelAccRate,
					s.Aggregate.ToolCallsTotal, s.Aggregate.CachedToolCallsTotal, p90)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", reportPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "scenario JSON file (required)")
	cmd.Flags().StringVar(&configsFlag, "configs", "baseline,readwrite_cache", "comma-separated memory modes")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "passes over the step sequence per config")
	cmd.Flags().StringVar(&userID, "user", "demo", "user id for memory scoping")
	cmd.Flags().StringVar(&reportPath, "report", "report.json", "report output path")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "use in-memory state stores")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect a state store's memory",
	}

	var dbPath string
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "state database path (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Per-scope, per-kind item counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			rows, err := st.MemoryStats()
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no memory items")
				return nil
			}
			for _, row := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-16s %d\n", row.Scope, row.Kind, row.Count)
			}
			return nil
		},
	}

	var (
		query  string
		scopes string
		limit  int
	)
	search := &cobra.Command{
		Use:   "search",
		Short: "Full-text search over memory items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			hits, err := st.SearchMemory(store.SearchQuery{
				Query:  query,
				Scopes: strings.Split(scopes, ","),
				Limit:  limit,
				NowISO: store.NowISO(),
			})
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] (%s) rank=%.3f use=%d\n%s\n\n",
					h.Item.Kind, h.Item.Scope, h.FTSRank, h.Item.UseCount, h.Item.Text)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d hits\n", len(hits))
			return nil
		},
	}
	search.Flags().StringVar(&query, "query", "", "FTS query (required)")
	search.Flags().StringVar(&scopes, "scopes", "global", "comma-separated scopes")
	search.Flags().IntVar(&limit, "limit", 10, "max hits")
	_ = search.MarkFlagRequired("query")

	cmd.AddCommand(stats, search)
	return cmd
}

func newMaintenanceCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Delete expired memory items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			expired, err := st.Maintenance(store.NowISO())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d items\n", expired)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "state database path (required)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
