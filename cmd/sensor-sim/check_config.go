package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sensor-sim/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), cfg)
	},
}

func printSummary(out io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Broker:\t%s\n", cfg.Publisher.BrokerURL)
	fmt.Fprintf(tw, "Client ID:\t%s\n", cfg.Publisher.ClientID)
	fmt.Fprintf(tw, "Topic:\t%s\n", cfg.Publisher.Topic)
	fmt.Fprintf(tw, "Interval:\t%s\n", cfg.Interval)
	fmt.Fprintf(tw, "Fail probability:\t%g\n", cfg.Simulation.FailProbability)
	fmt.Fprintf(tw, "Locations:\t%v\n", cfg.Simulation.Locations)
	for _, t := range cfg.Simulation.SensorTypes {
		fmt.Fprintf(tw, "Range %s:\t%s\n", t, cfg.Simulation.ValueRanges[t])
	}
	return tw.Flush()
}
