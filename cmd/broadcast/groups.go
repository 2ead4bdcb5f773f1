package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List the configured groups",
	RunE:  runGroups,
}

func init() {
	rootCmd.AddCommand(groupsCmd)
}

func runGroups(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, g := range catalog.All() {
		fmt.Fprintf(w, "%s\t%s\n", g.ID, g.Name)
	}
	return w.Flush()
}
