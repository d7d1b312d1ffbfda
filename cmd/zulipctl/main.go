// zulipctl manages the per-user and per-project Zulip settings the
// notification service reads, and previews the messages it would send.
//
// Usage:
//
//	zulipctl set project 3 zulip_webhook_url https://chat.example.com/api/v1/messages
//	zulipctl get project 3
//	zulipctl unset user 7 zulip_webhook_email
//	zulipctl project 3 "Operations"
//	zulipctl preview project 3 task.create --title "Rotate keys"
//	zulipctl dashboard --out dashboard.json
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type globalOpts struct {
	configPath string
	output     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:   "zulipctl",
		Short: "Manage Zulip notification settings",
		Long: `zulipctl edits the zulip_* metadata stored for users and projects
and previews the messages the notification service would send.

It opens the same store the service is configured with.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.yaml", "Path to the service config (yaml or json)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json, yaml")

	root.AddCommand(setCmd(opts))
	root.AddCommand(getCmd(opts))
	root.AddCommand(unsetCmd(opts))
	root.AddCommand(projectCmd(opts))
	root.AddCommand(previewCmd(opts))
	root.AddCommand(dashboardCmd(opts))
	return root
}
