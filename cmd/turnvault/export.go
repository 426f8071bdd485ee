package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minjae-ko/turnvault/config"
	"github.com/minjae-ko/turnvault/internal/export"
)

func exportCMD() *cobra.Command {
	var cfgPath, sessionID, mode, outPath string

	var cmd = &cobra.Command{
		Use:   "export",
		Short: "Write a session export file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			builder := export.NewBuilder(newRepo(cfg))

			ctx, cancel := context.WithTimeout(context.Background(), cfg.General.DefaultTimeout)
			defer cancel()

			var doc *export.Document
			var err error
			switch mode {
			case export.FormatRaw:
				doc, err = builder.Raw(ctx, sessionID)
			case export.FormatExtracted:
				doc, err = builder.Extracted(ctx, sessionID)
			default:
				return fmt.Errorf("unknown mode %q: want raw or extracted", mode)
			}
			if err != nil {
				return err
			}

			body, err := export.Marshal(doc)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = export.Filename(sessionID, mode)
			}
			if err := os.WriteFile(outPath, body, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&mode, "mode", export.FormatRaw, "export mode: raw or extracted")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default turnvault_<session>_<mode>.json)")

	return cmd
}
