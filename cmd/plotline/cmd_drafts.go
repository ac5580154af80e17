package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwestrom/plotline"
)

var newCmd = &cobra.Command{
	Use:   "new <kind> <title>",
	Short: "Create a draft from a template",
	Long: fmt.Sprintf(`Creates a templated draft in the drafts directory,
ready to fill in and process.

Kinds: %s

Example:
  plotline new character "Marcus Webb"`, strings.Join(plotline.TemplateKinds(), ", ")),
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			path, err := eng.NewDraft(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			good.Printf("Created %s\n", path)
			return nil
		})
	},
}

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "List unprocessed drafts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			names, err := eng.ListDrafts()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("No drafts waiting.")
				return nil
			}
			for _, name := range names {
				fmt.Printf("  %s\n", name)
			}
			return nil
		})
	},
}
