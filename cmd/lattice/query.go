package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jward/lattice"
	"github.com/spf13/cobra"
)

var (
	flagRoot   string
	flagFormat string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the cached index",
	// No Run — prints help by default.
}

func init() {
	queryCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "project root to query")
	queryCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")

	queryCmd.AddCommand(symbolsCmd)
	queryCmd.AddCommand(typeCmd)
	queryCmd.AddCommand(depsCmd)
	queryCmd.AddCommand(dependentsCmd)
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <name>",
	Short: "List every symbol with the given name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(coord *lattice.Coordinator, root string) error {
			syms, err := coord.SymbolsNamed(cmd.Context(), root, args[0])
			if err != nil {
				return err
			}
			if flagFormat == "json" {
				return writeJSON(syms)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tMODULE\tFILE\tLINE")
			for _, s := range syms {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
					s.Name, s.Kind, s.Module, s.File, s.Line)
			}
			return tw.Flush()
		})
	},
}

var typeCmd = &cobra.Command{
	Use:   "type <name>",
	Short: "Show the descriptor of a named type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(coord *lattice.Coordinator, root string) error {
			td, err := coord.TypeNamed(cmd.Context(), root, args[0])
			if err != nil {
				return err
			}
			if td == nil {
				return fmt.Errorf("no type named %q", args[0])
			}
			if flagFormat == "json" {
				return writeJSON(td)
			}
			fmt.Printf("%s (%s) %s:%d\n", td.Name, td.Kind, td.File, td.Line)
			if td.Underlying != "" {
				fmt.Println(td.Underlying)
			}
			return nil
		})
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps <module>",
	Short: "List the modules a module depends on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(coord *lattice.Coordinator, root string) error {
			deps, err := coord.Dependencies(cmd.Context(), root, args[0])
			if err != nil {
				return err
			}
			return writeModuleList(deps)
		})
	},
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents <module>",
	Short: "List the modules that depend on a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(coord *lattice.Coordinator, root string) error {
			deps, err := coord.Dependents(cmd.Context(), root, args[0])
			if err != nil {
				return err
			}
			return writeModuleList(deps)
		})
	},
}

// withCoordinator resolves the --root flag, builds a coordinator, runs fn,
// and tears down.
func withCoordinator(fn func(coord *lattice.Coordinator, root string) error) error {
	root, err := resolveRoot([]string{flagRoot})
	if err != nil {
		return err
	}
	_, coord, err := makeCoordinator(root)
	if err != nil {
		return err
	}
	defer coord.Close()
	return fn(coord, root)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeModuleList(paths []string) error {
	if flagFormat == "json" {
		return writeJSON(paths)
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
