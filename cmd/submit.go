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
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/confstore/config"
	"github.com/cardinalhq/confstore/internal/fly"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/notify"
	"github.com/cardinalhq/confstore/internal/tenantctx"
)

func init() {
	var (
		tenant        string
		path          string
		file          string
		oldHash       string
		remove        bool
		sourceService string
	)

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Send a configuration change request to the update topic",
		Long: `Publish an update or delete request the way another service would. One
node of the cluster applies it; a stale --old-hash is rejected there.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ev, err := buildMutation(tenant, path, file, oldHash, remove, sourceService)
			if err != nil {
				return err
			}
			return withTelemetry("confstore-submit", func(ctx context.Context) error {
				cfg, err := config.Load(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if !cfg.Kafka.Enabled {
					return errors.New("kafka is disabled")
				}

				producer, err := fly.NewFactory(&cfg.Kafka).CreateProducer()
				if err != nil {
					return fmt.Errorf("failed to create producer: %w", err)
				}
				defer func() {
					if err := producer.Close(); err != nil {
						slog.Error("Error closing producer", slog.Any("error", err))
					}
				}()

				pub := notify.NewPublisher(producer,
					cfg.TopicRegistry.GetTopic(config.TopicChanges),
					cfg.TopicRegistry.GetTopic(config.TopicUpdates),
					myInstanceID)
				ctx = tenantctx.WithSource(ctx, model.SourceSystemQueue)
				sent, err := pub.PublishMutation(ctx, ev)
				if err != nil {
					return err
				}
				slog.Info("Submitted change request",
					slog.String("eventId", sent.EventID),
					slog.String("eventType", string(sent.EventType)),
					slog.String("tenant", sent.Tenant),
					slog.String("path", sent.Data.Path))
				return nil
			})
		},
	}
	submitCmd.Flags().StringVar(&tenant, "tenant", "", "Tenant the change applies to (default commons)")
	submitCmd.Flags().StringVar(&path, "path", "", "Tenant-relative configuration path")
	submitCmd.Flags().StringVar(&file, "file", "", "File holding the new content")
	submitCmd.Flags().StringVar(&oldHash, "old-hash", "", "Content hash the change is based on (empty when creating)")
	submitCmd.Flags().BoolVar(&remove, "delete", false, "Delete the path instead of writing it")
	submitCmd.Flags().StringVar(&sourceService, "source-service", "confstore-cli", "Service name stamped on the request")
	_ = submitCmd.MarkFlagRequired("path")

	rootCmd.AddCommand(submitCmd)
}

func buildMutation(tenant, path, file, oldHash string, remove bool, sourceService string) (model.MutationEvent, error) {
	ev := model.MutationEvent{
		SourceService: sourceService,
		Tenant:        tenant,
		EventType:     model.EventUpdateConfig,
		Data: &model.ConfigurationUpdateMessage{
			Path:          path,
			OldConfigHash: oldHash,
		},
	}
	switch {
	case remove && file != "":
		return ev, errors.New("--delete and --file are mutually exclusive")
	case remove:
		ev.EventType = model.EventDeleteConfig
	case file == "":
		return ev, errors.New("--file is required unless --delete is set")
	default:
		content, err := os.ReadFile(file)
		if err != nil {
			return ev, err
		}
		ev.Data.Content = string(content)
	}
	return ev, nil
}
