package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hqtran/keyseek/config"
)

func sessionsCMD() *cobra.Command {
	var cfgPath string

	var sessions = &cobra.Command{
		Use:   "sessions",
		Short: "Manage retrieval sessions",
	}
	sessions.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")

	var create = &cobra.Command{
		Use:   "new",
		Short: "Create a session and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			searcher, err := newSearcher(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			info, err := searcher.CreateSession(ctx)
			if err != nil {
				return err
			}
			fmt.Println(info.SessionID)
			return nil
		},
	}

	var list = &cobra.Command{
		Use:   "list",
		Short: "List known sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			searcher, err := newSearcher(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			infos, err := searcher.ListSessions(ctx)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("%s  %s\n", info.SessionID, info.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	sessions.AddCommand(create, list)
	return sessions
}
