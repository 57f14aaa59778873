package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nsxbet/ddlguard/pkg/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the statement policy",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		w := cmd.OutOrStdout()

		fmt.Fprintln(w, "Always rejected:")
		for _, entry := range rules.Entries() {
			fmt.Fprintf(w, "  %-26s %s\n", entry.Label, entry.Kind)
		}

		fmt.Fprintln(w, "\nInspected:")
		for _, kind := range rules.InspectedKinds() {
			fmt.Fprintf(w, "  %s\n", kind)
		}
		fmt.Fprintf(w, "\nAllowed function language: %s\n", rules.NativeLanguage)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
