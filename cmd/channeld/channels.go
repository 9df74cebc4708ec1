package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rwa-platform/channel-service/internal/database"
	"github.com/rwa-platform/channel-service/internal/model"
	"github.com/rwa-platform/channel-service/internal/store"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage the channel directory",
}

var channelsImportCmd = &cobra.Command{
	Use:   "import [file.json]",
	Short: "Insert or update channels from a JSON array",
	Long: `Insert or update channels from a JSON file holding an array of channel
documents. Existing channels with the same id are replaced.

Examples:
  channeld channels import channels.json`,
	Args: cobra.ExactArgs(1),
	RunE: runChannelsImport,
}

func init() {
	channelsCmd.AddCommand(channelsImportCmd)
}

func readChannels(path string) ([]*model.Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	var channels []*model.Channel
	if err := json.Unmarshal(data, &channels); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}
	for i, ch := range channels {
		if ch == nil || ch.ID == "" {
			return nil, fmt.Errorf("channel %d: id is required", i)
		}
	}
	return channels, nil
}

func runChannelsImport(cmd *cobra.Command, args []string) error {
	channels, err := readChannels(args[0])
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	n, err := store.NewPostgres(pool).UpsertChannels(ctx, channels)
	if err != nil {
		return err
	}
	logger.Info("channels imported", "file", args[0], "count", n)
	return nil
}
