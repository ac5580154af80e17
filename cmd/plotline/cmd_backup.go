package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mwestrom/plotline"
)

var backupOut string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the content directory to a tar.gz",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			if err := eng.Backup(backupOut); err != nil {
				return err
			}
			good.Println("Backup written.")
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file.json>",
	Short: "Export the graph and document catalog as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := args[0]
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			if err := eng.Export(ctx, out); err != nil {
				return err
			}
			good.Printf("Exported to %s\n", out)
			return nil
		})
	},
}

func init() {
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "output path (default plotline_backup_<timestamp>.tar.gz)")
}
