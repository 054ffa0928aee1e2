package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"hydrovalley/internal/codec"
	"hydrovalley/internal/domain"

	"github.com/awalterschulze/gographviz"
	"github.com/spf13/cobra"
)

// loadModel parses a .json, .yaml or .yml valley file
func loadModel(path string, strict bool) (*domain.ValleyModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	model, err := codec.ForFilename(path).Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if strict {
		if err := codec.ValidateReferences(model); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return model, nil
}

func parseCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Validate a valley file and list its entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0], strict)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			idx := domain.NewEntityIndex(model)

			good.Fprintf(w, "  %s: %d entities\n", args[0], idx.Len())
			rows := make([][]string, 0, idx.Len())
			for _, name := range idx.Names() {
				kind, _ := idx.KindOf(name)
				rows = append(rows, []string{name, kind.Label(), describeConnections(idx.ConnectionsOf(name))})
			}
			table(w, []string{"NAME", "KIND", "CONNECTIONS"}, rows)

			for _, d := range idx.Dangling() {
				warn.Fprintf(w, "  warning: %s %s reference %q does not exist\n", d.Unit, d.Direction, d.Target)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "reject dangling unit references")
	return cmd
}

func describeConnections(conns []domain.Connection) string {
	if len(conns) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(conns))
	for _, c := range conns {
		part := string(c.Direction) + " " + c.Other
		if c.Dangling {
			part += " (missing)"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <file>",
		Short: "Print the diagram graph of a valley",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0], false)
			if err != nil {
				return err
			}
			graph := domain.BuildGraph(model)

			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(graph)
			case "dot":
				dot, err := toDOT(graph)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), dot)
				return err
			}
			return fmt.Errorf("unknown format %q (expected json or dot)", format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or dot")
	return cmd
}

// toDOT renders the graph as an unpositioned DOT digraph, the shape a
// layout engine takes as input.
func toDOT(graph *domain.Graph) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("valley"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	for _, n := range graph.Nodes {
		attrs := map[string]string{
			"shape":     n.Shape,
			"label":     strconv.Quote(n.Label),
			"fillcolor": strconv.Quote(n.Color),
			"style":     "filled",
		}
		if err := g.AddNode("valley", strconv.Quote(n.ID), attrs); err != nil {
			return "", fmt.Errorf("add node %s: %w", n.ID, err)
		}
	}
	for _, name := range graph.Placeholders {
		attrs := map[string]string{"shape": "point"}
		if err := g.AddNode("valley", strconv.Quote(name), attrs); err != nil {
			return "", fmt.Errorf("add placeholder %s: %w", name, err)
		}
	}
	for _, e := range graph.Edges {
		attrs := map[string]string{}
		if e.Dangling {
			attrs["style"] = "dashed"
		}
		if err := g.AddEdge(strconv.Quote(e.Source), strconv.Quote(e.Target), true, attrs); err != nil {
			return "", fmt.Errorf("add edge %s: %w", e.ID, err)
		}
	}
	return g.String(), nil
}

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <file>",
		Short: "Print the content fingerprint of a valley",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0], false)
			if err != nil {
				return err
			}
			fp, err := domain.FingerprintOf(model)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), fp)
			return err
		},
	}
}
