package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minjae-ko/turnvault/config"
	"github.com/minjae-ko/turnvault/internal/extract"
	"github.com/minjae-ko/turnvault/internal/store"
	"github.com/minjae-ko/turnvault/provider"
)

func extractCMD() *cobra.Command {
	var cfgPath, sessionID, marker, outPath string
	var batchSize int
	var abortOnError bool

	var cmd = &cobra.Command{
		Use:   "extract",
		Short: "Run the LLM extraction pipeline over a session's turn log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			repo := newRepo(cfg)

			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			pipeline := extract.New(llm)

			ctx := context.Background()
			turns, err := repo.ListTurns(ctx, sessionID)
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				return fmt.Errorf("session %s has no turns", sessionID)
			}
			texts := make([]string, 0, len(turns))
			for _, t := range turns {
				texts = append(texts, t.Text)
			}

			if batchSize == 0 {
				batchSize = cfg.Extract.BatchSize
			}
			res, err := pipeline.Run(ctx, strings.Join(texts, "\n\n"), extract.Options{
				Marker:          marker,
				BatchSize:       batchSize,
				Pace:            cfg.Extract.BatchPace,
				ContinueOnError: !abortOnError,
			})
			if err != nil {
				return err
			}
			for _, b := range res.Batches {
				status := "ok"
				if b.Err != nil {
					status = "failed: " + b.Err.Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "batch %d (%d chunks): %s\n", b.Index+1, b.Chunks, status)
			}

			kind := extract.KindForMarker(marker)
			err = repo.SaveExtraction(ctx, store.Extraction{
				SessionID:  sessionID,
				Kind:       kind,
				ChunkCount: res.ChunkCount,
				BatchSize:  res.BatchSize,
				Output:     res.Output,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s extraction for %s (%d chunks)\n", kind, sessionID, res.ChunkCount)

			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(extract.ArrayLiteral(res.Output)), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", outPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&marker, "marker", extract.MarkerTurn, "marker kind: turn, day or episode")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "chunks per LLM call (default from config)")
	cmd.Flags().StringVar(&outPath, "out", "", "also write the joined results to a file")
	cmd.Flags().BoolVar(&abortOnError, "abort-on-error", false, "stop at the first failed batch instead of recording and continuing")

	return cmd
}
