package main

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"zulipnotify/internal/config"
	"zulipnotify/internal/storage"
	"zulipnotify/internal/zulip"
)

func setCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "set <user|project> <id> <key> <value>",
		Short: "Set one zulip_* setting",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, id, err := parseSubject(args[0], args[1])
			if err != nil {
				return err
			}
			key, value := args[2], args[3]
			if err := checkKey(scope, key); err != nil {
				return err
			}
			return withStore(opts, func(ctx context.Context, _ *config.ConfigManager, st storage.Store) error {
				if err := st.SetMetadata(ctx, scope, id, key, value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d: %s set\n", scope, id, key)
				return nil
			})
		},
	}
}

func unsetCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <user|project> <id> <key>",
		Short: "Remove one zulip_* setting",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, id, err := parseSubject(args[0], args[1])
			if err != nil {
				return err
			}
			key := args[2]
			if err := checkKey(scope, key); err != nil {
				return err
			}
			return withStore(opts, func(ctx context.Context, _ *config.ConfigManager, st storage.Store) error {
				if err := st.DeleteMetadata(ctx, scope, id, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d: %s removed\n", scope, id, key)
				return nil
			})
		},
	}
}

func getCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user|project> <id> [key]",
		Short: "Show the stored zulip_* settings",
		Long: `Show the stored zulip_* settings of a user or project.

The bot API key is masked unless it is requested by name.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, id, err := parseSubject(args[0], args[1])
			if err != nil {
				return err
			}
			return withStore(opts, func(ctx context.Context, _ *config.ConfigManager, st storage.Store) error {
				meta, err := st.Metadata(ctx, scope, id)
				if err != nil {
					return err
				}
				if len(args) == 3 {
					v, ok := meta[args[2]]
					if !ok {
						return fmt.Errorf("%s %d: %s is not set", scope, id, args[2])
					}
					fmt.Fprintln(cmd.OutOrStdout(), v)
					return nil
				}
				return outputResult(cmd.OutOrStdout(), metadataResult(scope, id, meta), opts.output)
			})
		},
	}
}

func projectCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "project <id> <name>",
		Short: "Record a project name used in message headers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(opts, func(ctx context.Context, _ *config.ConfigManager, st storage.Store) error {
				if err := st.PutProject(ctx, storage.Project{ID: id, Name: args[1]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "project %d: %q\n", id, args[1])
				return nil
			})
		},
	}
}

func metadataResult(scope storage.Scope, id int64, meta map[string]string) MetadataResult {
	r := MetadataResult{Scope: string(scope), ID: id, Settings: []Setting{}}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	// Known keys first, in their documented order.
	sort.SliceStable(keys, func(i, j int) bool {
		ki, kj := slices.Index(zulip.Keys, keys[i]), slices.Index(zulip.Keys, keys[j])
		if ki < 0 {
			ki = len(zulip.Keys)
		}
		if kj < 0 {
			kj = len(zulip.Keys)
		}
		if ki != kj {
			return ki < kj
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		v := meta[k]
		if k == zulip.KeyBotAPIKey && v != "" {
			v = "********"
		}
		r.Settings = append(r.Settings, Setting{Key: k, Value: v})
	}
	return r
}
