package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hqtran/keyseek/config"
	"github.com/hqtran/keyseek/gateway"
	"github.com/hqtran/keyseek/gateway/offline"
	"github.com/hqtran/keyseek/models"
	"github.com/hqtran/keyseek/preview"
	"github.com/hqtran/keyseek/query"
	"github.com/hqtran/keyseek/submission"
)

// newSearcher builds the configured gateway for one-shot CLI commands.
func newSearcher(cfg *config.Config) (gateway.Searcher, error) {
	return gateway.NewSearcher(gateway.Provider(cfg.Gateway.Mode), gateway.Options{
		BaseURL: cfg.Gateway.BaseURL,
		Timeout: cfg.Gateway.Timeout,
		Offline: offline.Config{
			Mode:        cfg.Offline.Engine,
			CatalogPath: cfg.Offline.CatalogPath,
			Limit:       cfg.Offline.Limit,
			FPS:         cfg.Search.DefaultFPS,
		},
	})
}

func searchCMD() *cobra.Command {
	var cfgPath string
	var ocrText, asrText, odJSON, sessionID, csvPath string

	var search = &cobra.Command{
		Use:   "search [text...]",
		Short: "Run a one-shot query and print ranked keyframes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			searcher, err := newSearcher(cfg)
			if err != nil {
				return err
			}

			req, err := query.Build(query.Fields{
				Text:    strings.Join(args, " "),
				OCRText: ocrText,
				ASRText: asrText,
				ODJSON:  odJSON,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if sessionID == "" {
				info, err := searcher.CreateSession(ctx)
				if err != nil {
					return err
				}
				sessionID = info.SessionID
			}

			resp, err := searcher.QueryText(ctx, sessionID, req)
			if err != nil {
				return err
			}
			items := models.NormalizeAll(resp.Results)
			if len(items) == 0 {
				fmt.Println("no results")
				return nil
			}
			fmt.Printf("session %s, %d results\n", sessionID, len(items))
			for i, item := range items {
				fmt.Printf("%2d. %-12s %-32s score=%s t=%ds frame=%d\n",
					i+1, item.VideoID, item.Title,
					models.DisplayScore(item.Score),
					preview.SeekSeconds(item.TimestampMS),
					item.FrameNumber)
			}
			if csvPath != "" {
				if err := exportResultsCSV(csvPath, items); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", csvPath)
			}
			return nil
		},
	}
	search.Flags().StringVar(&ocrText, "ocr", "", "on-screen text channel")
	search.Flags().StringVar(&asrText, "asr", "", "speech transcript channel")
	search.Flags().StringVar(&odJSON, "objects", "", "object detection JSON")
	search.Flags().StringVar(&sessionID, "session", "", "existing session id (default: create one)")
	search.Flags().StringVar(&csvPath, "csv", "", "write the ranked frames to a CSV file")
	search.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")

	return search
}

// exportResultsCSV dumps the ranked frames as a frame-list CSV, the same
// layout the submission export endpoint serves.
func exportResultsCSV(path string, items []models.ResultItem) error {
	list := submission.NewList()
	for _, item := range items {
		if _, err := list.Add(item.VideoID, item.FrameNumber, item.Title); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := list.ExportCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
