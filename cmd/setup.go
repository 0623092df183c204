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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/confstore/config"
	"github.com/cardinalhq/confstore/internal/fly"
	"github.com/cardinalhq/confstore/internal/gitstore"
	"github.com/cardinalhq/confstore/internal/model"
)

// emptyAliasTree is written when the store has no alias tree yet.
const emptyAliasTree = "tenants: []\n"

func init() {
	var (
		skipStore  bool
		skipKafka  bool
		dryRun     bool
		topicsFile string
	)

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Prepare the git store and the Kafka topics",
		Long:  "Seed the tenant alias tree in the git store and make sure the Kafka topics exist with the configured settings.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withTelemetry("confstore-setup", func(ctx context.Context) error {
				cfg, err := config.Load(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if topicsFile != "" {
					override, err := config.LoadTopicsOverride(topicsFile)
					if err != nil {
						return err
					}
					cfg.Topics = config.MergeTopicsOverride(cfg.Topics, override)
				}

				if skipStore {
					slog.Info("Skipping store setup")
				} else if err := seedStore(ctx, cfg, dryRun); err != nil {
					return fmt.Errorf("store setup failed: %w", err)
				}

				if skipKafka || !cfg.Kafka.Enabled {
					slog.Info("Skipping Kafka topic setup")
				} else if err := ensureKafkaTopics(ctx, cfg, !dryRun); err != nil {
					return fmt.Errorf("kafka topic setup failed: %w", err)
				}

				slog.Info("Setup completed")
				return nil
			})
		},
	}

	setupCmd.Flags().BoolVar(&skipStore, "skip-store", false, "Skip seeding the git store")
	setupCmd.Flags().BoolVar(&skipKafka, "skip-kafka", false, "Skip Kafka topic setup")
	setupCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without changing it")
	setupCmd.Flags().StringVar(&topicsFile, "topics-file", "", "YAML file overriding topic settings")

	rootCmd.AddCommand(setupCmd)
}

// seedStore writes an empty alias tree when the store has none.
func seedStore(ctx context.Context, cfg *config.Config, dryRun bool) error {
	store, err := gitstore.Open(ctx, cfg.Git.StoreOptions())
	if err != nil {
		return err
	}

	aliasPath := cfg.Tenants.AliasTreePath
	ver, files, err := store.ReadPaths(ctx, []string{aliasPath})
	if err != nil {
		return err
	}
	if len(files) > 0 {
		slog.Info("Alias tree present", slog.String("path", aliasPath), slog.String("version", ver.MainVersion()))
		return nil
	}
	if dryRun {
		slog.Info("Alias tree missing; would create it", slog.String("path", aliasPath))
		return nil
	}

	res, err := store.Apply(ctx, []gitstore.Change{
		gitstore.WriteChange(aliasPath, emptyAliasTree).Expecting(model.AbsentHash),
	})
	if errors.Is(err, gitstore.ErrWriteConflict) {
		slog.Info("Alias tree created concurrently", slog.String("path", aliasPath))
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("Created alias tree", slog.String("path", aliasPath), slog.String("commit", res.Commit))
	return nil
}

// ensureKafkaTopics syncs the registered topics with kafka-sync. With fix
// unset the differences are only reported.
func ensureKafkaTopics(ctx context.Context, cfg *config.Config, fix bool) error {
	factory := fly.NewFactory(&cfg.Kafka)
	topicsConfig := cfg.TopicRegistry.KafkaSyncConfig(cfg.Topics)

	slog.Info("Syncing Kafka topics", slog.Int("count", len(topicsConfig.Topics)))
	if err := factory.CreateTopicSyncer().SyncTopics(ctx, topicsConfig, fix); err != nil {
		return err
	}
	if !fix {
		return nil
	}

	missing, err := fly.NewAdminClient(&cfg.Kafka).MissingTopics(ctx, cfg.TopicRegistry.GetAllTopics()...)
	if err != nil {
		return fmt.Errorf("failed to verify topics: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("topics still missing after sync: %v", missing)
	}
	return nil
}
