package main

import (
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/dnn/graph"
	"github.com/born-ml/dnn/tensor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type evalOptions struct {
	inputs  string
	outputs []string
	repeat  int
	json    bool
}

func newEvalCmd(a *app) *cobra.Command {
	var opts evalOptions
	cmd := &cobra.Command{
		Use:   "eval MODEL",
		Short: "Evaluate a model on JSON inputs",
		Long: `Evaluate a model on inputs read from a JSON object that maps input names
to nested arrays, for example {"input": [[0, 1, 2]], "scale": 1}.

Every declared output is printed unless --output names the values to fetch;
an output may also name an intermediate value of the model.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.eval(cmd, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.inputs, "inputs", "i", "", "JSON file with the input values, - for stdin")
	flags.StringSliceVarP(&opts.outputs, "output", "o", nil, "Output to fetch (repeatable)")
	flags.IntVarP(&opts.repeat, "repeat", "n", 1, "Number of evaluations to run")
	flags.BoolVar(&opts.json, "json", false, "Print outputs as JSON")
	_ = cmd.MarkFlagRequired("inputs")
	return cmd
}

func (a *app) eval(cmd *cobra.Command, uri string, opts evalOptions) error {
	if opts.repeat < 1 {
		return errors.Errorf("--repeat must be at least 1, got %d", opts.repeat)
	}
	data, err := readInputs(cmd.InOrStdin(), opts.inputs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	g, err := a.openGraph(ctx, uri)
	if err != nil {
		return err
	}
	defer g.Close()

	inputs, err := parseInputs(data, g.Endpoints(graph.Input))
	if err != nil {
		return err
	}
	defer releaseAll(inputs)
	for _, in := range inputs {
		if _, err := g.DefineInput(in.tensor, in.name); err != nil {
			return err
		}
	}

	names := opts.outputs
	if len(names) == 0 {
		for _, e := range g.Endpoints(graph.Output) {
			names = append(names, e.Name)
		}
	}
	outputs := make([]namedTensor, 0, len(names))
	defer func() { releaseAll(outputs) }()
	for _, name := range names {
		out := namedTensor{name: name, tensor: tensor.Empty()}
		outputs = append(outputs, out)
		if _, err := g.DefineOutput(out.tensor, name); err != nil {
			return err
		}
	}

	start := time.Now()
	for i := 0; i < opts.repeat; i++ {
		if err := g.EvalContext(ctx); err != nil {
			return errors.Wrapf(err, "evaluation %d", i+1)
		}
	}
	a.log.V(1).Info("Evaluated model", "path", g.Path(), "repeat", opts.repeat, "duration", time.Since(start))

	if opts.json {
		return printJSON(cmd.OutOrStdout(), outputs)
	}
	return printTables(cmd.OutOrStdout(), outputs)
}

func readInputs(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return data, errors.Wrap(err, "reading inputs from stdin")
	}
	data, err := os.ReadFile(path)
	return data, errors.Wrap(err, "reading inputs")
}

func printTables(w io.Writer, outputs []namedTensor) error {
	for i, out := range outputs {
		rows, err := tensorRows(out.tensor)
		if err != nil {
			return errors.Wrapf(err, "output %q", out.name)
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", out.name, out.tensor)
		renderTable(w, nil, rows)
	}
	return nil
}

func printJSON(w io.Writer, outputs []namedTensor) error {
	doc := make(map[string]tensorJSON, len(outputs))
	for _, out := range outputs {
		v, err := toJSON(out.tensor)
		if err != nil {
			return errors.Wrapf(err, "output %q", out.name)
		}
		doc[out.name] = v
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding outputs")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
