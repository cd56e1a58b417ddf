package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "keytool",
		Short:         "Derive sovereign accounts and mint development tokens",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(sovereignCmd())
	root.AddCommand(tokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
