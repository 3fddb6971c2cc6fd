package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hqtran/keyseek/config"
)

func healthCMD() *cobra.Command {
	var cfgPath string

	var health = &cobra.Command{
		Use:   "health",
		Short: "Check the retrieval backend",
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
			status, err := searcher.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", status.Status, status.Message)
			return nil
		},
	}
	health.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")

	return health
}
