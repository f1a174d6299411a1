package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/go-drift/effects/pkg/downgrade"
	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/engine/enginetest"
	"github.com/go-drift/effects/pkg/platform"
	"github.com/go-drift/effects/pkg/player"
	"github.com/go-drift/effects/pkg/scene"
	"github.com/go-drift/effects/pkg/telemetry"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	Scene   string
	Repeat  int
	Timeout time.Duration
}

func newSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate <scene-dir>",
		Short: "Run a scene against the recording engine",
		Long: `Run the full player lifecycle for a local scene directory against an
in-memory engine: initialize, play once, deliver the completion event and
destroy. The engine calls are printed in order.

Downgrade switches from the configuration apply, so a downgraded scene
prints its reason and no calls.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), rootOpts, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Scene, "scene", "", "scene code for the downgrade switches")
	cmd.Flags().IntVar(&opts.Repeat, "repeat", 1, "repeat count of the play request")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "time limit per step")

	return cmd
}

// stepTokens numbers play requests from 1.
type stepTokens struct{ n int }

func (s *stepTokens) Next() string {
	s.n++
	return fmt.Sprintf("play-%d", s.n)
}

func runSimulate(ctx context.Context, rootOpts *RootOptions, opts *SimulateOptions, dir string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := rootOpts.store()
	if err != nil {
		return err
	}
	cfg := store.Current()
	data, err := scene.LoadDir(dir)
	if err != nil {
		return err
	}
	defer startTelemetry(ctx, cfg)()

	eng := enginetest.New()
	p := player.New(player.Params{URL: dir, Scene: opts.Scene, RepeatCount: opts.Repeat}, player.Deps{
		Engine: eng,
		Switches: downgrade.Sources{Flags: store, Decider: &downgrade.Policy{
			Settings:      store.PolicySettings,
			EngineVersion: eng.Version,
		}},
		Render:     store,
		Monitor:    telemetry.NewOTel(otel.GetTracerProvider()),
		Tokens:     &stepTokens{},
		UI:         platform.SyncExecutor{},
		Background: platform.SyncExecutor{},
	})
	defer p.Destroy()

	if p.IsDowngraded() {
		fmt.Fprintf(w, "downgraded: %s\n", p.DowngradeReason())
		return nil
	}

	initDone := make(chan error, 1)
	p.Initialize(ctx, data, func(err error) { initDone <- err })
	if err := wait(ctx, initDone, opts.Timeout, "initialize"); err != nil {
		printCalls(w, eng)
		return err
	}
	slog.Debug("scene ready", slog.String("dir", dir), slog.Int("frames", data.FrameCount()))

	playDone := make(chan error, 1)
	p.Play(func(err error) { playDone <- err })
	if plays := eng.Find("PlayFrameRange"); len(plays) > 0 {
		last := plays[len(plays)-1]
		id, _ := last.Args[0].(engine.InstanceID)
		token, _ := last.Args[3].(string)
		eng.Emit(engine.Event{Instance: id, Kind: engine.EventAnimationEnd, Payload: token})
	}
	if err := wait(ctx, playDone, opts.Timeout, "play"); err != nil {
		printCalls(w, eng)
		return err
	}

	p.Destroy()
	printCalls(w, eng)
	return nil
}

func wait(ctx context.Context, ch <-chan error, timeout time.Duration, step string) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-ch:
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: timed out after %s", step, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", step, ctx.Err())
	}
}

func printCalls(w io.Writer, eng *enginetest.Engine) {
	for i, c := range eng.Calls() {
		fmt.Fprintf(w, "%3d  %s\n", i+1, c)
	}
}
