package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/dashboard"
	"github.com/grafana/grafana-foundation-sdk/go/prometheus"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
	"github.com/spf13/cobra"
)

func dashboardCmd(_ *globalOpts) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Generate a Grafana dashboard for the service metrics",
		Long: `Builds a Grafana dashboard over the zulipnotify_* Prometheus series and
writes it as JSON. Use --out - to print to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := buildDashboard()
			if err != nil {
				return err
			}
			if outPath == "-" {
				_, err = cmd.OutOrStdout().Write(append(payload, '\n'))
				return err
			}
			if err := os.WriteFile(outPath, payload, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dashboard written to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "dashboard.json", "Output file, or - for stdout")
	return cmd
}

func query(expr, legend string) *prometheus.DataqueryBuilder {
	return prometheus.NewDataqueryBuilder().Expr(expr).LegendFormat(legend)
}

func buildDashboard() ([]byte, error) {
	builder := dashboard.NewDashboardBuilder("Zulip Notifications").
		Uid("zulipnotify").
		Tags([]string{"zulip", "notifications", "prometheus"}).
		Refresh("1m").
		Time("now-6h", "now").
		Timezone(common.TimeZoneBrowser)

	builder = builder.WithRow(dashboard.NewRowBuilder("Dispatch"))
	builder = builder.WithPanel(
		timeseries.NewPanelBuilder().
			Title("Dispatch decisions").
			WithTarget(query(`sum by (outcome) (rate(zulipnotify_dispatch_total[5m]))`, "{{outcome}}")),
	)
	builder = builder.WithPanel(
		timeseries.NewPanelBuilder().
			Title("Dispatch by scope").
			WithTarget(query(`sum by (scope) (rate(zulipnotify_dispatch_total{outcome="submitted"}[5m]))`, "{{scope}}")),
	)

	builder = builder.WithRow(dashboard.NewRowBuilder("Transport"))
	builder = builder.WithPanel(
		timeseries.NewPanelBuilder().
			Title("Webhook posts").
			WithTarget(query(`sum(rate(zulipnotify_posts_total{outcome="sent"}[5m]))`, "sent")).
			WithTarget(query(`sum(rate(zulipnotify_posts_total{outcome="failed"}[5m]))`, "failed")).
			WithTarget(query(`sum(rate(zulipnotify_posts_total{outcome="dropped"}[5m]))`, "dropped")),
	)
	builder = builder.WithPanel(
		timeseries.NewPanelBuilder().
			Title("Post duration").
			WithTarget(query(`sum(rate(zulipnotify_post_duration_seconds_sum[5m])) / sum(rate(zulipnotify_post_duration_seconds_count[5m]))`, "avg")).
			WithTarget(query(`histogram_quantile(0.95, sum by (le) (rate(zulipnotify_post_duration_seconds_bucket[5m])))`, "p95")),
	)
	builder = builder.WithPanel(
		timeseries.NewPanelBuilder().
			Title("Queue depth").
			WithTarget(query(`max(zulipnotify_queue_depth)`, "queued")),
	)

	d, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(d, "", "  ")
}
