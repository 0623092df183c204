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
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/confstore/config"
	"github.com/cardinalhq/confstore/internal/configservice"
	"github.com/cardinalhq/confstore/internal/gitstore"
	"github.com/cardinalhq/confstore/internal/model"
	"github.com/cardinalhq/confstore/internal/tenantctx"
)

func init() {
	var (
		tenant  string
		paths   []string
		raw     bool
		content bool
	)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the configuration a node would serve",
		Long: `Open the store, load it the way a node does and print the version and the
configurations visible to a tenant. With --raw the repository files at HEAD
are listed instead.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withTelemetry("confstore-snapshot", func(ctx context.Context) error {
				cfg, err := config.Load(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				store, err := gitstore.Open(ctx, cfg.Git.StoreOptions())
				if err != nil {
					return fmt.Errorf("failed to open store: %w", err)
				}

				if raw {
					ver, files, err := store.ReadAll(ctx)
					if err != nil {
						return err
					}
					return printConfigurations(os.Stdout, ver, files, content)
				}

				externals, err := openExternals(ctx, cfg)
				if err != nil {
					return err
				}
				svc := configservice.New(store, configservice.Options{
					AliasTreePath: cfg.Tenants.AliasTreePath,
					Externals:     externals,
					Logger:        slog.Default(),
				})
				if err := svc.Load(ctx); err != nil {
					return err
				}

				var files []model.Configuration
				err = tenantctx.Run(ctx, tenant, func(ctx context.Context) error {
					var err error
					if len(paths) > 0 {
						files, err = svc.GetConfigurations(ctx, tenant, paths)
					} else {
						files, err = svc.ListConfigurations(ctx, tenant)
					}
					return err
				})
				if err != nil {
					return err
				}
				return printConfigurations(os.Stdout, svc.Version(), files, content)
			})
		},
	}
	snapshotCmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to resolve for (default commons)")
	snapshotCmd.Flags().StringSliceVar(&paths, "path", nil, "Only these tenant-relative paths (repeatable)")
	snapshotCmd.Flags().BoolVar(&raw, "raw", false, "List repository files instead of resolved configurations")
	snapshotCmd.Flags().BoolVar(&content, "content", false, "Print file contents")

	rootCmd.AddCommand(snapshotCmd)
}

func printConfigurations(out io.Writer, ver model.ConfigVersion, files []model.Configuration, withContent bool) error {
	fmt.Fprintf(out, "version: %s\n", ver)
	if withContent {
		for _, f := range files {
			fmt.Fprintf(out, "--- %s (%s)\n%s\n", f.Path, f.Hash(), f.Content)
		}
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tHASH\tBYTES")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%d\n", f.Path, f.Hash(), len(f.Content))
	}
	return w.Flush()
}
