package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/rwa-platform/channel-service/internal/client"
	"github.com/rwa-platform/channel-service/internal/model"
)

var (
	serverURL  string
	serverBase string

	matchReq model.MatchRequest

	statsChannel string
	statsPeriod  string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank channels for an asset against a running instance",
	Long: `Ask a running channeld for the ranked channels of an asset.

Examples:
  channeld match --asset RWA-TBILL --region US --amount 5000
  channeld match --server http://channeld:8003 --asset RWA-GOLD --region EU --payment card`,
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := newClient().Match(cmd.Context(), &matchReq)
		if err != nil {
			return err
		}
		return printJSON(cmd, results)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the daily attribution snapshot of a channel",
	Long: `Load the daily attribution snapshot of a channel from a running channeld.

Examples:
  channeld stats --channel ch-coinbase
  channeld stats --channel ch-coinbase --period 2024-01-15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().Stats(cmd.Context(), statsChannel, statsPeriod)
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

func init() {
	for _, c := range []*cobra.Command{matchCmd, statsCmd} {
		c.Flags().StringVar(&serverURL, "server", "http://localhost:8003", "channeld base URL")
		c.Flags().StringVar(&serverBase, "base-path", client.DefaultBasePath, "API base path")
	}

	f := matchCmd.Flags()
	f.StringVar(&matchReq.AssetID, "asset", "", "asset id")
	f.StringVar(&matchReq.UserRegion, "region", "", "user region")
	f.Float64Var(&matchReq.Amount, "amount", 0, "trade amount")
	f.StringVar(&matchReq.UserID, "user", "", "user id")
	f.StringVar(&matchReq.KYCLevel, "kyc", "", "user KYC level")
	f.StringVar(&matchReq.PaymentMethod, "payment", "", "payment method")
	matchCmd.MarkFlagRequired("asset")
	matchCmd.MarkFlagRequired("region")

	statsCmd.Flags().StringVar(&statsChannel, "channel", "", "channel id")
	statsCmd.Flags().StringVar(&statsPeriod, "period", "", "day as YYYY-MM-DD (default: today)")
	statsCmd.MarkFlagRequired("channel")
}

func newClient() *client.Client {
	return client.NewClient(serverURL,
		client.WithBasePath(serverBase),
		client.WithTimeout(15*time.Second),
		client.WithRetries(2, 500*time.Millisecond),
	)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
