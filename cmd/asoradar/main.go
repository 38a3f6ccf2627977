package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "asoradar",
		Short: "Research App Store keyword difficulty and popularity",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(searchCmd())
	root.AddCommand(rankCmd())
	root.AddCommand(opportunityCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func searchCmd() *cobra.Command {
	var (
		countries  string
		appID      int64
		jsonOutput bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "search <keyword> [keyword...]",
		Short: "Score keywords against the current App Store results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(args, countries, appID, jsonOutput, force)
		},
	}

	cmd.Flags().StringVar(&countries, "country", "", "comma-separated storefronts (e.g., us,gb)")
	cmd.Flags().Int64Var(&appID, "app", 0, "tracked app id to locate in the results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&force, "force", false, "re-measure keywords already scored today")
	return cmd
}

func rankCmd() *cobra.Command {
	var country string

	cmd := &cobra.Command{
		Use:   "rank <track-id> <keyword>",
		Short: "Find an app's position in a keyword's search results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(args[0], args[1], country)
		},
	}

	cmd.Flags().StringVar(&country, "country", "us", "storefront to search")
	return cmd
}

func opportunityCmd() *cobra.Command {
	var (
		country    string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "opportunity",
		Short: "Rank researched keywords by opportunity score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpportunity(country, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&country, "country", "", "filter by storefront")
	cmd.Flags().IntVar(&limit, "limit", 20, "max keywords to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		country    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history <keyword>",
		Short: "Show past measurements of a keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(args[0], country, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&country, "country", "us", "storefront")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		country string
		keyword string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(country, keyword, outPath)
		},
	}

	cmd.Flags().StringVar(&country, "country", "", "filter by storefront")
	cmd.Flags().StringVar(&keyword, "keyword", "", "export one keyword's full history instead of the latest snapshot")
	cmd.Flags().StringVar(&outPath, "out", "", "write to file (default: stdout)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with refresh scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
