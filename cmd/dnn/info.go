package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/dnn/graph"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info MODEL",
		Short: "Show model endpoints and metadata",
		Long: `Show the inputs and outputs a model declares and its metadata.

MODEL is a model directory, an .onnx file, or a gs:// or s3:// URI.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.info(cmd, args[0])
		},
	}
}

func (a *app) info(cmd *cobra.Command, uri string) error {
	g, err := a.openGraph(cmd.Context(), uri)
	if err != nil {
		return err
	}
	defer g.Close()

	w := cmd.OutOrStdout()
	var rows [][]string
	for _, dir := range []graph.Direction{graph.Input, graph.Output} {
		for _, e := range g.Endpoints(dir) {
			rows = append(rows, []string{e.Name, dir.String(), e.DType.String(), formatDims(e.Dims)})
		}
	}
	renderTable(w, []string{"NAME", "DIRECTION", "TYPE", "SHAPE"}, rows)
	fmt.Fprintln(w)

	md := g.Metadata()
	md["opset"] = strconv.FormatInt(g.OpsetVersion(), 10)
	renderTable(w, []string{"KEY", "VALUE"}, metadataRows(md))
	return nil
}
