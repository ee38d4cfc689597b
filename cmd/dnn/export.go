package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/dnn/internal/script"
)

type exportOptions struct {
	call string
	args []string
}

func newExportCmd(a *app) *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export SCRIPT",
		Short: "Run a Python script that writes a model",
		Long: `Run a Python export script in a fresh namespace, then optionally call one of
its functions with --arg values (ints, floats, anything else as strings).

When the call returns a string it is taken as the path of the exported
model, which is loaded to check it and described as by "dnn info".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.export(cmd, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.call, "call", "", "Function to call after the script ran")
	flags.StringArrayVar(&opts.args, "arg", nil, "Argument for --call (repeatable)")
	return cmd
}

func (a *app) export(cmd *cobra.Command, path string, opts exportOptions) error {
	if opts.call == "" && len(opts.args) > 0 {
		return errors.New("--arg requires --call")
	}
	ctx := cmd.Context()

	ip, err := script.Acquire(ctx, script.WithPython(a.cfg.Python), script.WithStderr(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer ip.Close()

	if err := ip.RunFile(ctx, path); err != nil {
		return errors.Wrapf(err, "running %s", path)
	}
	if opts.call == "" {
		return nil
	}

	args := make([]script.Value, len(opts.args))
	for i, s := range opts.args {
		args[i] = parseArg(s)
	}
	result, err := ip.Call(ctx, opts.call, args...)
	if err != nil {
		return errors.Wrapf(err, "calling %s", opts.call)
	}

	model, ok := result.(script.Text)
	if !ok {
		if result != nil {
			fmt.Fprintln(cmd.OutOrStdout(), result)
		}
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "exported", string(model))
	return a.info(cmd, string(model))
}

func parseArg(s string) script.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return script.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return script.Real(f)
	}
	return script.Text(s)
}
