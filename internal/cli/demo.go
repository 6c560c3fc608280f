package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoobzio/fieldz"
)

var (
	demoOutput string
	demoPrint  bool
)

func init() {
	demoCmd.Flags().StringVarP(&demoOutput, "output", "o", "", "write documents here instead of the configured output (- for stdout)")
	demoCmd.Flags().BoolVar(&demoPrint, "print", false, "also trace every notification to stderr")
	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Emit the documents for two nested spans",
	Long:  `Opens span "outer" (INFO, datum=0) and, inside it, span "inner" (DEBUG, ipsum=1), firing one event in each.`,
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) (err error) {
	cfg, err := fieldz.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if demoOutput != "" {
		cfg.Output.Path = demoOutput
	}

	logger, err := fieldz.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sink, err := cfg.BuildSink(cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close output: %w", cerr))
		}
	}()

	layerOpts := []fieldz.LayerOption{fieldz.WithLayerLogger(logger)}
	if cfg.Metrics.Namespace != "" {
		metrics := fieldz.NewMetrics(prometheus.NewRegistry(), cfg.Metrics.Namespace)
		layerOpts = append(layerOpts, fieldz.WithMetrics(metrics))
	}

	tracerOpts := []fieldz.Option{
		fieldz.WithLogger(logger),
		fieldz.WithLayer(fieldz.NewJSONLayer(fieldz.NewRegistry(), sink, layerOpts...)),
	}
	if demoPrint {
		tracerOpts = append(tracerOpts, fieldz.WithLayer(fieldz.NewPrintLayer(cmd.ErrOrStderr())))
	}
	tracer := fieldz.New(tracerOpts...)
	defer tracer.Close()

	if flusher, ok := sink.(fieldz.Flusher); ok && cfg.Buffer.FlushOnRootClose {
		if err := tracer.EnableWorkerPool(1, 16); err != nil {
			return err
		}
		tracer.FlushOnRootClose(flusher)
	}

	runScenario(context.Background(), tracer)

	logger.Debug("demo finished",
		zap.Int64("live_spans", tracer.LiveSpans()),
		zap.Uint64("dropped_handler_calls", tracer.DroppedHandlerCalls()),
	)
	return nil
}

func runScenario(ctx context.Context, tracer *fieldz.Tracer) {
	ctx, outer := tracer.StartSpan(ctx, fieldz.LevelInfo, "outer", fieldz.Int("datum", 0))
	defer outer.Finish()
	tracer.Info(ctx, "hi from outer")

	ctx, inner := tracer.StartSpan(ctx, fieldz.LevelDebug, "inner", fieldz.Int("ipsum", 1))
	defer inner.Finish()
	tracer.Info(ctx, "hi from inner")
}
