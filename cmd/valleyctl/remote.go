package main

import (
	"fmt"
	"strconv"
	"time"

	"hydrovalley/internal/config"
	"hydrovalley/internal/dataset"
	"hydrovalley/internal/domain"
	"hydrovalley/internal/layout"
	"hydrovalley/internal/logging"
	"hydrovalley/internal/simulation"

	"github.com/spf13/cobra"
)

func layoutCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "layout <file>",
		Short: "Ask the layout service for node positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0], false)
			if err != nil {
				return err
			}

			cache := layout.NewCache(layout.NewHTTPFetcher(url, timeout))
			result, err := cache.GetLayout(cmd.Context(), model)
			if err != nil {
				return err
			}
			positioned, err := layout.Adapt(result.DOT, domain.BuildGraph(model), logging.Discard())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			brand.Fprintf(w, "  layout %s\n", result.Fingerprint.Short())
			rows := make([][]string, 0, len(positioned.Nodes))
			for _, n := range positioned.Nodes {
				x, y := "-", "-"
				if n.Position != nil {
					x = strconv.FormatFloat(n.Position.X, 'f', 1, 64)
					y = strconv.FormatFloat(n.Position.Y, 'f', 1, 64)
				}
				rows = append(rows, []string{n.ID, n.Kind.Label(), x, y})
			}
			table(w, []string{"NODE", "KIND", "X", "Y"}, rows)

			for _, name := range positioned.Unpositioned {
				warn.Fprintf(w, "  warning: no position for %s\n", name)
			}
			for _, name := range positioned.Dropped {
				subtle.Fprintf(w, "  ignored layout entry %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", config.DefaultLayoutURL, "layout service URL")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultLayoutTimeout, "layout request timeout")
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
		csv     bool
	)

	cmd := &cobra.Command{
		Use:   "simulate <file>",
		Short: "Run a simulation and summarize the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0], false)
			if err != nil {
				return err
			}

			resp, err := simulation.NewClient(url, timeout).Run(cmd.Context(), model)
			if err != nil {
				return err
			}
			results := simulation.Merge(resp, domain.NewEntityIndex(model))

			w := cmd.OutOrStdout()
			if csv {
				return results.WriteCSV(w)
			}

			rows := make([][]string, 0, len(results.Volumes))
			for _, name := range results.Names() {
				res := results.Volumes[name]
				kind := "-"
				if res.Kind != "" {
					kind = res.Kind.Label()
				}
				rows = append(rows, []string{
					name,
					kind,
					strconv.Itoa(res.Summary.Length),
					strconv.FormatFloat(res.Summary.Min, 'g', 6, 64),
					strconv.FormatFloat(res.Summary.Max, 'g', 6, 64),
				})
			}
			good.Fprintf(w, "  %d series\n", len(rows))
			table(w, []string{"ENTITY", "KIND", "STEPS", "MIN", "MAX"}, rows)

			for _, name := range results.Unknown() {
				warn.Fprintf(w, "  warning: %s is not in the model\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", config.DefaultSimulationURL, "simulation service URL")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultSimulationTimeout, "simulation request timeout")
	cmd.Flags().BoolVar(&csv, "csv", false, "print volumes as CSV")
	return cmd
}

func datasetsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := dataset.New(dir, "").List()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(infos) == 0 {
				subtle.Fprintf(w, "  no datasets in %s\n", dir)
				return nil
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Name,
					string(info.Kind),
					fmt.Sprintf("%d", info.Size),
					info.ModTime.Format(time.DateTime),
				})
			}
			table(w, []string{"NAME", "KIND", "BYTES", "MODIFIED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", config.DefaultDatasetDir, "dataset directory")
	return cmd
}
