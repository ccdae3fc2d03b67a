// Package realtime implements the realtime playback command.
package realtime

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mayaflux/mayaflux-go/internal/backend"
	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/engine"
	"github.com/mayaflux/mayaflux-go/internal/graph"
	"github.com/mayaflux/mayaflux-go/internal/logging"
	"github.com/mayaflux/mayaflux-go/internal/observability"
)

// Command returns the realtime subcommand: open the hardware stream and run
// the engine until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	var testTone bool

	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run the engine against the system audio device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRealtime(settings, testTone)
		},
	}

	cmd.Flags().BoolVar(&testTone, "test-tone", false, "Render a 440 Hz sine on every output channel")

	return cmd
}

func runRealtime(settings *conf.Settings, testTone bool) error {
	logger := logging.ForService("realtime")

	be, err := backend.NewMalgoBackend()
	if err != nil {
		return fmt.Errorf("audio backend init failed: %w", err)
	}

	var metrics *observability.Metrics
	var opts []engine.Option
	if settings.Metrics.Enabled {
		metrics = observability.NewMetrics()
		opts = append(opts, engine.WithMetrics(metrics))
	}

	eng := engine.New(settings, be, opts...)
	defer func() {
		if err := eng.Close(); err != nil && logger != nil {
			logger.Error("engine close failed", "error", err)
		}
	}()

	if testTone {
		for ch := uint32(0); ch < settings.Stream.Output.Channels; ch++ {
			sine := graph.NewSine(440, 0.2, 0, settings.Stream.SampleRate)
			eng.Graph().RegisterNode(sine, conf.TokenAudioBackend, ch)
		}
	}

	if metrics != nil {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(settings.Metrics.Listen, mux); err != nil && logger != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	if err := eng.Start(); err != nil {
		return fmt.Errorf("stream start failed: %w", err)
	}

	fmt.Printf("engine running at %d Hz, block %d; ctrl-c to stop\n",
		settings.Stream.SampleRate, settings.Stream.BufferSize)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	return eng.Stop()
}
