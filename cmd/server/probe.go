package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/makt28/downwatch/internal/monitor"
)

var probeTimeout time.Duration

func init() {
	probeCmd.Flags().DurationVarP(&probeTimeout, "timeout", "t", monitor.DefaultProbeTimeout, "probe timeout")
	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Check a URL once the way a monitor would",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
		defer cancel()

		res := monitor.NewHTTPProber().Probe(ctx, args[0])
		if res.Outcome == monitor.Reachable {
			fmt.Fprintf(cmd.OutOrStdout(), "UP    %s  status=%d  latency=%s\n",
				args[0], res.StatusCode, res.Latency.Round(time.Millisecond))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DOWN  %s  %s\n", args[0], res.Error)
		return fmt.Errorf("%s is unreachable", args[0])
	},
}
