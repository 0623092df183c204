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

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/confstore/config"
	"github.com/cardinalhq/confstore/internal/confcache"
	"github.com/cardinalhq/confstore/internal/configservice"
	"github.com/cardinalhq/confstore/internal/debugging"
	"github.com/cardinalhq/confstore/internal/fly"
	"github.com/cardinalhq/confstore/internal/gitstore"
	"github.com/cardinalhq/confstore/internal/healthcheck"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/notify"
	"github.com/cardinalhq/confstore/internal/reconciler"
)

// Readiness conditions a node sets once the matching part is running.
const (
	conditionStoreLoaded = "store_loaded"
	conditionConsumers   = "consumers_running"
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a configuration store node",
		Long: `Open the git store, load every tenant into memory and keep the cache
current from Kafka change events and periodic reconciliation.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withTelemetry("confstore", func(ctx context.Context) error {
				cfg, err := config.Load(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				return runNode(ctx, cfg)
			})
		},
	}
	rootCmd.AddCommand(serveCmd)
}

// openExternals opens every configured external repository read-only.
func openExternals(ctx context.Context, cfg *config.Config) ([]configservice.External, error) {
	var (
		externals []configservice.External
		errs      *multierror.Error
	)
	for _, ext := range cfg.External {
		opts := ext.Git.StoreOptions()
		opts.Logger = slog.Default().With(slog.String("external", ext.Name))
		store, err := gitstore.Open(ctx, opts)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("external %s: %w", ext.Name, err))
			continue
		}
		externals = append(externals, configservice.External{Name: ext.Name, Store: store})
	}
	return externals, errs.ErrorOrNil()
}

// resolveNodeID returns the configured node id, or the one kept with the
// working copy so restarts rejoin the same change consumer group.
func resolveNodeID(cfg *config.Config, store *gitstore.Store) (string, error) {
	if cfg.Service.NodeID != "" {
		return cfg.Service.NodeID, nil
	}
	id, err := store.NodeID(uuid.NewString)
	if err != nil {
		return "", fmt.Errorf("failed to resolve node id: %w", err)
	}
	return id, nil
}

func logChanges(ctx context.Context, version model.ConfigVersion, changed []confcache.Key) {
	slog.DebugContext(ctx, "Configurations changed",
		slog.String("version", version.MainVersion()),
		slog.Int("count", len(changed)))
}

func runNode(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := gitstore.Open(ctx, cfg.Git.StoreOptions())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	nodeID, err := resolveNodeID(cfg, store)
	if err != nil {
		return err
	}
	externals, err := openExternals(ctx, cfg)
	if err != nil {
		return err
	}

	opts := configservice.Options{
		AliasTreePath: cfg.Tenants.AliasTreePath,
		Externals:     externals,
		Listeners:     []configservice.ChangeListener{configservice.ChangeListenerFunc(logChanges)},
		Logger:        slog.Default(),
	}

	var manager *fly.Manager
	if cfg.Kafka.Enabled {
		manager = fly.NewManager(fly.NewFactory(&cfg.Kafka))
		defer func() {
			if err := manager.Close(); err != nil {
				slog.Error("Error closing Kafka clients", slog.Any("error", err))
			}
		}()
		producer, err := manager.CreateProducer()
		if err != nil {
			return fmt.Errorf("failed to create producer: %w", err)
		}
		opts.Publisher = notify.NewPublisher(producer,
			cfg.TopicRegistry.GetTopic(config.TopicChanges),
			cfg.TopicRegistry.GetTopic(config.TopicUpdates),
			myInstanceID)
	} else {
		slog.Warn("Kafka disabled; changes reach other nodes only through reconciliation")
	}

	svc := configservice.New(store, opts)
	health := healthcheck.NewServer(cfg.Health, func() string { return svc.Version().String() })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return health.Start(gctx) })
	g.Go(func() error { return debugging.RunPprof(gctx, cfg.Debug) })

	if err := svc.Load(gctx); err != nil {
		health.SetStatus(healthcheck.StatusUnhealthy)
		cancel()
		return errors.Join(fmt.Errorf("failed to load configuration: %w", err), g.Wait())
	}
	health.SetStatus(healthcheck.StatusHealthy)
	health.SetReadyCondition(conditionStoreLoaded, true)
	slog.Info("Configuration loaded", slog.String("version", svc.Version().String()))

	rec := reconciler.New(svc.Reconcile, cfg.Reconcile.Interval, slog.Default())
	g.Go(func() error { return rec.Run(gctx) })

	if manager != nil {
		if err := startConsumers(gctx, g, cfg, manager, svc, nodeID); err != nil {
			cancel()
			return errors.Join(err, g.Wait())
		}
		health.SetReadyCondition(conditionConsumers, true)
	}

	slog.Info("Node running")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Node stopped")
	return nil
}

// startConsumers joins the change topic with a consumer group of this node's
// own and the update topic with the group shared by the cluster.
func startConsumers(ctx context.Context, g *errgroup.Group, cfg *config.Config, manager *fly.Manager, svc *configservice.Service, nodeID string) error {
	reg := cfg.TopicRegistry

	// A node loads the whole store before it consumes, so a new group starts
	// at the newest event. A restarted node rejoins its group and replays
	// from its last commit, which refresh absorbs.
	changeGroup := reg.GetConsumerGroup(config.TopicChanges, nodeID)
	changes, err := manager.CreateConsumer(reg.GetTopic(config.TopicChanges), changeGroup, kafka.LastOffset)
	if err != nil {
		return fmt.Errorf("failed to create change consumer: %w", err)
	}
	updates, err := manager.CreateConsumer(reg.GetTopic(config.TopicUpdates), reg.GetConsumerGroup(config.TopicUpdates, myInstanceID), kafka.FirstOffset)
	if err != nil {
		return fmt.Errorf("failed to create update consumer: %w", err)
	}

	cc := notify.NewChangeConsumer(changes, svc, myInstanceID, cfg.Service.DedupTTL)
	mc := notify.NewMutationConsumer(updates, svc, cfg.Service.Name, cfg.Service.DedupTTL)
	g.Go(func() error { return cc.Run(ctx) })
	g.Go(func() error { return mc.Run(ctx) })

	slog.Info("Kafka consumers started",
		slog.String("changeGroup", changeGroup),
		slog.String("updateGroup", reg.GetConsumerGroup(config.TopicUpdates, myInstanceID)))
	return nil
}
