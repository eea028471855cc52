// Command tapengine runs the tabular analysis plan engine from the command
// line: profile a dataset into a pattern report, or execute an analysis plan
// against it. Input is the engine's native JSON data model (an array of row
// objects, and a plan of named snippets); results print as JSON on stdout.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tapengine/internal/config"
	"tapengine/internal/engine"
	"tapengine/internal/frame"
)

var (
	flagDebug      bool
	flagConfigPath string
	flagDataset    string
	flagPlan       string

	logger *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:   "tapengine",
		Short: "Profile tabular datasets and execute analysis plans against them",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if flagDebug {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = cfg.Build()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to engine config YAML")
	root.PersistentFlags().StringVarP(&flagDataset, "dataset", "d", "", "path to dataset JSON (array of row objects)")

	detect := &cobra.Command{
		Use:   "detect",
		Short: "Profile a dataset into a pattern report",
		RunE:  runDetect,
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Execute an analysis plan against a dataset",
		RunE:  runPlan,
	}
	run.Flags().StringVarP(&flagPlan, "plan", "p", "", "path to plan JSON")

	root.AddCommand(detect, run)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildEngine() (*engine.Engine, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, logger), nil
}

func loadDataset() (dataframe.DataFrame, error) {
	if flagDataset == "" {
		return dataframe.DataFrame{}, fmt.Errorf("--dataset is required")
	}
	data, err := os.ReadFile(flagDataset)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read dataset: %w", err)
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("parse dataset: %w", err)
	}
	return frame.FromRows(rows)
}

func runDetect(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	df, err := loadDataset()
	if err != nil {
		return err
	}
	return printJSON(eng.DetectPatterns(df))
}

func runPlan(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	df, err := loadDataset()
	if err != nil {
		return err
	}
	if flagPlan == "" {
		return fmt.Errorf("--plan is required")
	}
	data, err := os.ReadFile(flagPlan)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	var p engine.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse plan: %w", err)
	}
	return printJSON(eng.ExecutePlan(cmd.Context(), df, p))
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
