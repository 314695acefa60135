package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jward/lattice/internal/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a project root and keep its index fresh",
	Long:  "Watches the project tree for file changes, marks the cached index stale on each change, and re-indexes lazily on the next query.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	cfg, coord, err := makeCoordinator(root)
	if err != nil {
		return err
	}
	defer coord.Close()

	// Prime the cache so the first change has something to invalidate.
	if _, err := coord.GetIndex(cmd.Context(), root); err != nil {
		return fmt.Errorf("initial index: %w", err)
	}

	var watchOpts []watch.Option
	if len(cfg.Exclude) > 0 {
		watchOpts = append(watchOpts, watch.WithExcludes(cfg.Exclude...))
	}
	w, err := watch.New(root, watchOpts...)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()
	go w.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "Watching %s\n", root)
	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			coord.ObserveBatch(batch)
			slog.Info("changes observed", "count", len(batch))
		case <-sig:
			fmt.Fprintln(os.Stderr, "Shutting down")
			return nil
		case <-cmd.Context().Done():
			return nil
		}
	}
}
