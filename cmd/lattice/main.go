package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/lattice"
	"github.com/jward/lattice/internal/analyze"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lattice",
	Short:         "Two-tier project index cache",
	Long:          "Lattice indexes source code with tree-sitter and keeps the result in a TTL-bounded in-process cache backed by a fingerprint-validated on-disk store.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(flagLogLevel)
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: lattice.toml under the project root)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug|info|warn|error")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
	return nil
}

var (
	flagForce    bool
	flagStrategy string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build or refresh the index for a project root",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "bypass both cache tiers and re-analyze from scratch")
	indexCmd.Flags().StringVar(&flagStrategy, "strategy", "", "cold store serialization: json|sqlite (overrides config)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	cfg, coord, err := makeCoordinator(root)
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx := cmd.Context()
	if timeout := cfg.AnalyzerTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var idx *lattice.ProjectIndex
	if flagForce {
		idx, err = coord.Refresh(ctx, root)
	} else {
		idx, err = coord.GetIndex(ctx, root)
	}
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	symbols, types, modules, edges := idx.Counts()
	fmt.Fprintf(os.Stderr, "Indexed %s in %s (%d symbols, %d types, %d modules, %d edges)\n",
		root, time.Since(start).Round(time.Millisecond), symbols, types, modules, edges)
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Report whether the persisted index is still valid",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	_, coord, err := makeCoordinator(root)
	if err != nil {
		return err
	}
	defer coord.Close()

	if !coord.Valid(cmd.Context(), root) {
		fmt.Println("stale")
		return nil
	}
	idx, err := coord.GetIndex(cmd.Context(), root)
	if err != nil {
		return err
	}
	symbols, types, modules, edges := idx.Counts()
	fmt.Printf("valid (%d symbols, %d types, %d modules, %d edges, built %s)\n",
		symbols, types, modules, edges, idx.BuiltAt().Format(time.RFC3339))
	return nil
}

var clearCmd = &cobra.Command{
	Use:   "clear [path]",
	Short: "Drop the persisted index for a project root",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClear,
}

func runClear(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	_, coord, err := makeCoordinator(root)
	if err != nil {
		return err
	}
	defer coord.Close()

	if err := coord.ClearCache(root); err != nil {
		return fmt.Errorf("clearing: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Cleared cache for %s\n", root)
	return nil
}

// makeCoordinator loads the config for a root and wires a coordinator
// around the tree-sitter analyzer, honoring the flag overrides.
func makeCoordinator(root string) (lattice.Config, *lattice.Coordinator, error) {
	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath = filepath.Join(root, "lattice.toml")
	}
	cfg, err := lattice.LoadConfig(cfgPath)
	if err != nil {
		return lattice.Config{}, nil, err
	}
	if flagStrategy != "" {
		cfg.Strategy = flagStrategy
	}

	var analyzerOpts []analyze.Option
	if len(cfg.Exclude) > 0 {
		analyzerOpts = append(analyzerOpts, analyze.WithExcludes(cfg.Exclude...))
	}
	analyzer := analyze.New(analyzerOpts...)

	coord := lattice.New(analyzer, cfg.Options()...)
	return cfg, coord, nil
}

// resolveRoot returns the absolute path of the project root argument.
func resolveRoot(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
