package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/minjae-ko/turnvault/config"
	"github.com/minjae-ko/turnvault/internal/store"
)

func newRepo(cfg *config.Config) *store.Repo {
	docs := store.NewClient(cfg.Firestore.ProjectID, cfg.Firestore.APIKey, cfg.Firestore.Database, cfg.Firestore.BaseURL, cfg.Firestore.Timeout)
	return store.NewRepo(docs)
}

func sessionsCMD() *cobra.Command {
	var cfgPath string
	var sessions = &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			repo := newRepo(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.General.DefaultTimeout)
			defer cancel()
			list, err := repo.ListSessions(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSUBJECT\tTURNS\tUPDATED")
			for _, s := range list {
				updated := ""
				if !s.UpdatedAt.IsZero() {
					updated = s.UpdatedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Subject, s.TurnCount, updated)
			}
			return w.Flush()
		},
	}
	sessions.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return sessions
}
