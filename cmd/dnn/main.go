// Package main provides the dnn command line tool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/born-ml/dnn/graph"
	"github.com/born-ml/dnn/internal/modelstore"
)

const version = "v0.0.1-dev"

// app carries the state shared by all commands of one invocation.
type app struct {
	cfg   Config
	log   logr.Logger
	flush func()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{log: logr.Discard(), flush: func() {}}

	root := &cobra.Command{
		Use:           "dnn",
		Short:         "Inspect and evaluate ONNX models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.flush()
		},
	}

	root.AddCommand(
		newInfoCmd(a),
		newEvalCmd(a),
		newFetchCmd(a),
		newExportCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup reads the configuration and installs the logger into the command
// context.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, flush, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg, a.log, a.flush = cfg, logger, flush

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logr.NewContext(ctx, logger))
	return nil
}

// openGraph resolves uri to a local model and loads it.
func (a *app) openGraph(ctx context.Context, uri string) (*graph.Graph, error) {
	path, err := a.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return graph.New(path, graph.WithLogger(a.log))
}

func (a *app) resolve(ctx context.Context, uri string) (string, error) {
	store := modelstore.New(a.cfg.CacheDir, a.cfg.storeOptions()...)
	return store.Resolve(ctx, uri)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dnn %s\n", version)
		},
	}
}
