package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diviner-ai/diviner/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "divinerd",
		Short: "Diviner daemon and CLI",
		Long:  "Diviner daemon for running the retrieval API server and maintaining the knowledge base",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.BackfillCmd())
	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.QueryCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
