package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loopy/internal/bootstrap"
	"loopy/internal/domain"
	"loopy/internal/engine/headless"
)

func newRootCmd(stdout io.Writer, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "loopyctl",
		Short:         "Remove vocals from a song and loop a section of it from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newProcessCmd(), newLoopCmd())
	return root
}

func newProcessCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Remove the vocals from an MP3 or WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			run, err := startRun(cmd, args[0])
			if err != nil {
				return err
			}
			defer run.close()

			if err := run.process(ctx); err != nil {
				return err
			}
			return run.save(ctx, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "where to write the result (defaults to no_vocals.mp3)")
	return cmd
}

var validate = validator.New()

type loopArgs struct {
	Start   float64 `validate:"gte=0"`
	End     float64 `validate:"gtfield=Start"`
	Minutes int     `validate:"gt=0"`
}

func newLoopCmd() *cobra.Command {
	var (
		output string
		args   loopArgs
	)

	cmd := &cobra.Command{
		Use:   "loop <file>",
		Short: "Remove the vocals, then loop a region of the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			if err := validate.Struct(args); err != nil {
				return fmt.Errorf("invalid region or duration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			run, err := startRun(cmd, positional[0])
			if err != nil {
				return err
			}
			defer run.close()

			if err := run.process(ctx); err != nil {
				return err
			}
			if err := run.selectRegion(args.Start, args.End); err != nil {
				return err
			}
			if err := run.services.Session.SetLoopDuration(args.Minutes); err != nil {
				return err
			}
			if err := run.services.Session.RequestLoop(ctx); err != nil {
				return err
			}
			if err := run.failure(); err != nil {
				return err
			}
			return run.save(ctx, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "where to write the result (defaults to looped_song.mp3)")
	cmd.Flags().Float64Var(&args.Start, "start", 0, "region start in seconds")
	cmd.Flags().Float64Var(&args.End, "end", 15, "region end in seconds")
	cmd.Flags().IntVar(&args.Minutes, "minutes", 30, "length of the looped track in minutes")
	return cmd
}

type run struct {
	out      io.Writer
	engine   *headless.Engine
	services bootstrap.Services
	file     domain.AudioFile
}

func startRun(cmd *cobra.Command, path string) (*run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	engine := headless.New(nil, nil)
	services, err := bootstrap.Build(engine, &cliSink{out: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}

	r := &run{
		out:      cmd.OutOrStdout(),
		engine:   engine,
		services: services,
		file:     domain.AudioFile{Name: filepath.Base(path), Data: data},
	}
	if err := services.Session.SelectFile(r.file); err != nil {
		r.close()
		return nil, err
	}
	return r, nil
}

func (r *run) process(ctx context.Context) error {
	if err := r.services.Session.Process(ctx); err != nil {
		return err
	}
	return r.failure()
}

// selectRegion moves the seeded loop region, as dragging it in the widget would.
func (r *run) selectRegion(start, end float64) error {
	regions := r.engine.Regions()
	if len(regions) == 0 {
		return fmt.Errorf("no loop region available; is looping enabled?")
	}
	return r.engine.UpdateRegion(regions[0].ID, start, end)
}

func (r *run) failure() error {
	if failure := r.services.Session.Snapshot().Error; failure != nil {
		return fmt.Errorf("%s: %s", failure.Code, failure.Detail)
	}
	return nil
}

func (r *run) save(ctx context.Context, output string) error {
	track, err := r.services.Session.Download(ctx)
	if err != nil {
		return err
	}
	if output == "" {
		output = track.Filename
	}
	if err := os.WriteFile(output, track.Data, 0o644); err != nil {
		return err
	}
	r.services.Logger.Info("track written", zap.String("path", output), zap.Int("bytes", len(track.Data)))
	fmt.Fprintf(r.out, "wrote %s (%d bytes)\n", output, len(track.Data))
	return nil
}

func (r *run) close() {
	r.services.Session.Close()
	_ = r.services.Logger.Sync()
}

var (
	progressColor = color.New(color.FgCyan)
	errorColor    = color.New(color.FgRed, color.Bold)
)

// cliSink reports progress and errors on stderr. Other session events are dropped.
type cliSink struct {
	out io.Writer
}

func (s *cliSink) SessionChanged(_ domain.Snapshot, _ domain.StageReason) {}
func (s *cliSink) RegionChanged(_ domain.RegionInfo)                      {}
func (s *cliSink) PlaybackChanged(_ domain.PlaybackState)                 {}

func (s *cliSink) ProgressMessage(text string) {
	progressColor.Fprintln(s.out, text)
}

func (s *cliSink) SessionError(code domain.ErrorCode, detail string) {
	errorColor.Fprintf(s.out, "error (%s): %s\n", code, detail)
}
