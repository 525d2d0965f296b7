package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List the configured report items in processing order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, item := range cfg.Items {
			fmt.Fprintf(out, "%d. [%s] %s\n", i+1, item.ID, item.Name)
		}
		return nil
	},
}
