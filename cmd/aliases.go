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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/confstore/config"
	"github.com/cardinalhq/confstore/internal/aliastree"
	"github.com/cardinalhq/confstore/internal/gitstore"
)

func init() {
	var (
		key  string
		path string
	)

	aliasesCmd := &cobra.Command{
		Use:   "aliases [FILE]",
		Short: "Validate a tenant alias tree and print it",
		Long: `Parse a tenant alias tree document and print the tree. Without FILE the
document is read from the store. With --key the ancestor chain of that
tenant is printed, and with --path also the tenants whose copy of the path
is merged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = aliasTreeFromStore(c.Context())
			}
			if err != nil {
				return err
			}

			tree, err := aliastree.ParseAndBuild(data)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			if key == "" {
				printAliasTree(out, tree)
				return nil
			}
			return printAliasChain(out, tree, key, path)
		},
	}
	aliasesCmd.Flags().StringVar(&key, "key", "", "Tenant key whose ancestor chain to print")
	aliasesCmd.Flags().StringVar(&path, "path", "", "Configuration path to compute the merge chain for (needs --key)")

	rootCmd.AddCommand(aliasesCmd)
}

func aliasTreeFromStore(ctx context.Context) ([]byte, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := gitstore.Open(ctx, cfg.Git.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	_, files, err := store.ReadPaths(ctx, []string{cfg.Tenants.AliasTreePath})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no alias tree at %s", cfg.Tenants.AliasTreePath)
	}
	return []byte(files[0].Content), nil
}

func printAliasTree(out io.Writer, tree *aliastree.Tree) {
	fmt.Fprintf(out, "%d tenants\n", tree.Len())
	tree.Walk(func(a *aliastree.Alias, depth int) bool {
		line := strings.Repeat("  ", depth) + a.Key()
		if merge := a.MergeAsYml(); len(merge) > 0 {
			line += " merge=" + strings.Join(merge, ",")
		}
		fmt.Fprintln(out, line)
		return true
	})
}

func printAliasChain(out io.Writer, tree *aliastree.Tree, key, path string) error {
	if _, ok := tree.Lookup(key); !ok {
		return fmt.Errorf("tenant %q is not in the alias tree", key)
	}
	fmt.Fprintf(out, "ancestors: %s\n", strings.Join(tree.AncestorKeys(key), " -> "))
	if path != "" {
		fmt.Fprintf(out, "merge chain for %s: %s\n", path, strings.Join(tree.MergeChain(key, path), " -> "))
	}
	return nil
}
