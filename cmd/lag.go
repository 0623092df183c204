// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.


package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/confstore/config"
	"github.com/cardinalhq/confstore/internal/fly"
)

type lagRow struct {
	Topic         string `json:"topic"`
	ConsumerGroup string `json:"consumerGroup"`
	Partition     int    `json:"partition"`
	Committed     int64  `json:"committedOffset"`
	HighWaterMark int64  `json:"highWaterMark"`
	Lag           int64  `json:"lag"`
}

func init() {
	var (
		groups     []string
		jsonOutput bool
	)

	lagCmd := &cobra.Command{
		Use:   "lag",
		Short: "Show consumer lag on the configuration topics",
		Long: `Show how far consumer groups trail the configuration topics. The update
topic is checked for the shared group. Change topic groups are per node, so
they must be named with --change-group.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			rows, err := consumerLag(ctx, cfg, groups)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return printLag(os.Stdout, rows)
		},
	}
	lagCmd.Flags().StringSliceVar(&groups, "change-group", nil, "Change topic consumer group to check (repeatable)")
	lagCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(lagCmd)
}

func consumerLag(ctx context.Context, cfg *config.Config, changeGroups []string) ([]lagRow, error) {
	reg := cfg.TopicRegistry
	admin := fly.NewAdminClient(&cfg.Kafka)

	type target struct{ topic, group string }
	targets := []target{{reg.GetTopic(config.TopicUpdates), reg.GetConsumerGroup(config.TopicUpdates, "")}}
	for _, g := range changeGroups {
		targets = append(targets, target{reg.GetTopic(config.TopicChanges), g})
	}

	var rows []lagRow
	for _, t := range targets {
		lags, err := admin.ConsumerGroupLag(ctx, t.topic, t.group)
		if err != nil {
			return nil, fmt.Errorf("lag for %s on %s: %w", t.group, t.topic, err)
		}
		for _, l := range lags {
			rows = append(rows, lagRow{
				Topic:         t.topic,
				ConsumerGroup: t.group,
				Partition:     l.Partition,
				Committed:     l.CommittedOffset,
				HighWaterMark: l.HighWaterMark,
				Lag:           l.Lag,
			})
		}
	}
	return rows, nil
}

func printLag(out io.Writer, rows []lagRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "No lag data available")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOPIC\tGROUP\tPARTITION\tCOMMITTED\tHIGH WATER\tLAG")
	var total int64
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", r.Topic, r.ConsumerGroup, r.Partition, r.Committed, r.HighWaterMark, r.Lag)
		total += r.Lag
	}
	fmt.Fprintf(w, "\t\t\t\tTOTAL\t%d\n", total)
	return w.Flush()
}
