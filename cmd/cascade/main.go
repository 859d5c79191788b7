// Command cascade runs the hierarchical score-aggregation pipeline from the
// command line: it reads scored items, drives the four stages, and renders
// the result as a table or a JSON report.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-cascade/infrastructure/export"
	"github.com/ahrav/go-cascade/infrastructure/middleware"
	"github.com/ahrav/go-cascade/internal/config"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/pipeline"
	"github.com/ahrav/go-cascade/pkg/logger"
)

var (
	flagConfig   string
	flagItems    string
	flagOutput   string
	flagFormat   string
	flagLogLevel string
	flagMetrics  bool
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Hierarchical score aggregation engine",
	Long: `cascade aggregates item-level scores through dimension, area, and
cluster stages into a single global score with dispersion-adaptive
penalties, hermeticity validation, and full provenance.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the aggregation pipeline over a scored item set",
	RunE:  runPipeline,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file without running the pipeline",
	RunE:  validateConfig,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in default configuration as YAML",
	RunE:  initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to the YAML configuration (defaults to the built-in taxonomy)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug, info, warn, error")

	runCmd.Flags().StringVarP(&flagItems, "items", "i", "", "path to the scored items JSON file (required)")
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the full JSON report to this file")
	runCmd.Flags().StringVarP(&flagFormat, "format", "f", "table", "stdout format: table or json")
	runCmd.Flags().BoolVar(&flagMetrics, "metrics", false, "register Prometheus metrics for this run")
	_ = runCmd.MarkFlagRequired("items")

	initCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the configuration to this file instead of stdout")

	rootCmd.AddCommand(runCmd, validateCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(flagConfig)
}

func loadItems(path string) ([]domain.ScoredItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	var items []domain.ScoredItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing items: %w", err)
	}
	return items, nil
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	items, err := loadItems(flagItems)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger.NewText(os.Stderr, flagLogLevel)),
		pipeline.WithObserver(middleware.NewOTelRunObserver()),
	}
	if flagMetrics {
		opts = append(opts, pipeline.WithMetrics(middleware.NewPrometheusMetrics()))
	}
	driver, err := pipeline.New(cfg, opts...)
	if err != nil {
		return err
	}

	result, runErr := driver.Run(cmd.Context(), items)
	if runErr != nil {
		return fmt.Errorf("pipeline failed at stage %s: %w", result.FailedStage, runErr)
	}

	report, err := export.BuildReport(cfg, result)
	if err != nil {
		return err
	}
	if flagOutput != "" {
		f, err := os.Create(flagOutput)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		if err := export.WriteJSON(f, report); err != nil {
			return err
		}
	}

	if flagFormat == "json" {
		return export.WriteJSON(os.Stdout, report)
	}
	return printSummary(cfg, result)
}

// qualityColor maps the configured bands onto terminal colors, best first.
func qualityColor(cfg *config.Config, level domain.QualityLevel) *color.Color {
	palette := []*color.Color{
		color.New(color.FgGreen, color.Bold),
		color.New(color.FgGreen),
		color.New(color.FgYellow),
		color.New(color.FgRed, color.Bold),
	}
	for i, name := range cfg.SortedBandNames() {
		if name == level && i < len(palette) {
			return palette[i]
		}
	}
	return color.New(color.FgRed, color.Bold)
}

func printSummary(cfg *config.Config, result *pipeline.Result) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Cluster", "Score", "Scenario", "Penalty", "Coherence", "Weakest Area"})
	for _, cs := range result.Clusters {
		if err := table.Append([]string{
			string(cs.Cluster),
			fmt.Sprintf("%.3f", cs.Score),
			string(cs.Scenario),
			fmt.Sprintf("%.3f", cs.PenaltyFactor),
			fmt.Sprintf("%.3f", cs.Coherence),
			string(cs.WeakestArea),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	g := result.Global
	levelText := qualityColor(cfg, g.QualityLevel).Sprint(string(g.QualityLevel))
	fmt.Printf("\nGlobal score: %.3f / %.1f  (%s)\n", g.Score, cfg.ScaleMax, levelText)
	fmt.Printf("Cross-cutting coherence: %.3f  Alignment: %.3f\n",
		g.CrossCuttingCoherence, g.Alignment.Combined)
	if len(g.SystemicGaps) > 0 {
		warn := color.New(color.FgRed).SprintFunc()
		fmt.Printf("Systemic gaps: %s\n", warn(fmt.Sprintf("%v", g.SystemicGaps)))
	} else {
		fmt.Println("Systemic gaps: none")
	}
	return nil
}

func initConfig(_ *cobra.Command, _ []string) error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("rendering configuration: %w", err)
	}
	if flagOutput == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(flagOutput, data, 0o644)
}

func validateConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ok := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("Configuration %s\n", ok("valid"))
	fmt.Printf("  areas:          %d\n", len(cfg.Taxonomy.Areas))
	fmt.Printf("  dimensions:     %d\n", len(cfg.Taxonomy.Dimensions))
	fmt.Printf("  clusters:       %d\n", len(cfg.Taxonomy.Clusters))
	fmt.Printf("  items per cell: %d\n", cfg.Taxonomy.ItemsPerCell)
	fmt.Printf("  expected items: %d\n", cfg.Taxonomy.ExpectedItemCount())
	fmt.Printf("  scale:          [0, %.1f]\n", cfg.ScaleMax)
	fmt.Printf("  hermeticity:    %s\n", cfg.Hermeticity)
	fmt.Printf("  fusion:         %s\n", cfg.DimensionFusion.Method)
	return nil
}
