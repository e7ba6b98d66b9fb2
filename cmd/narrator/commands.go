package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/voice-narrator/internal/config"
	"github.com/book-expert/voice-narrator/internal/fileutil"
	"github.com/book-expert/voice-narrator/internal/install"
	"github.com/book-expert/voice-narrator/internal/narrator"
	"github.com/book-expert/voice-narrator/internal/objectstore"
	"github.com/book-expert/voice-narrator/internal/voice"
	"github.com/book-expert/voice-narrator/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
)

const healthTimeout = 10 * time.Second

func usageArgs(maxArgs int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > maxArgs {
			return fmt.Errorf("%w: %s accepts at most %d argument(s), received %d",
				narrator.ErrUsage, cmd.Name(), maxArgs, len(args))
		}

		return nil
	}
}

// primaryArg requires exactly one positional argument. It runs before the
// configuration is loaded, so a missing argument is reported as a usage error
// even when the configuration itself is broken.
func primaryArg(mode narrator.Mode) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return narrator.MissingArgument(mode)
		}

		return usageArgs(1)(cmd, args)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "narrator",
		Short:         "Narrate text files with an external text-to-speech model",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unknown command %q", narrator.ErrUsage, args[0])
			}

			return nil
		},
		RunE: func(*cobra.Command, []string) error {
			return fmt.Errorf("%w: a command is required", narrator.ErrUsage)
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", narrator.ErrUsage, err)
	})

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose console output")

	rootCmd.AddCommand(
		newAutoCmd(a),
		newManualCmd(a),
		newStoryCmd(a),
		newInstallCmd(a),
		newCleanCmd(a),
		newHealthCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}

func newManualCmd(a *app) *cobra.Command {
	var flags narrator.Flags

	cmd := &cobra.Command{
		Use:   "manual <text>",
		Short: "Synthesize one text with an explicit voice style",
		Args:  primaryArg(narrator.ModeManual),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.Text = args[0]
			}

			job, err := narrator.Resolve(narrator.ModeManual, flags, a.cfg.Narrator, a.log)
			if err != nil {
				return err
			}

			pipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			result, err := pipeline.Manual(cmd.Context(), job)
			if err != nil {
				return err
			}

			a.summarize(result)

			return nil
		},
	}

	cmd.Flags().StringVar(&flags.VoiceStyle, "voice-style", "", fmt.Sprintf("voice style %v", voice.Styles()))
	cmd.Flags().StringVar(&flags.Output, "output", "", "output WAV path (default output.wav)")
	addVoiceFlags(cmd, &flags)
	cmd.Flags().Float64Var(&flags.Overrides.Exaggeration, "exaggeration", 0, "override the style's exaggeration")
	cmd.Flags().Float64Var(&flags.Overrides.CFGWeight, "cfg-weight", 0, "override the style's cfg weight")
	cmd.Flags().Float64Var(&flags.Overrides.Temperature, "temperature", 0, "sampling temperature (0 keeps the model default)")

	return cmd
}

func newAutoCmd(a *app) *cobra.Command {
	var flags narrator.Flags

	cmd := &cobra.Command{
		Use:   "auto <input-file>",
		Short: "Chunk a text or markdown file and narrate it with varied voice styles",
		Args:  primaryArg(narrator.ModeAuto),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.InputPath = args[0]
			}

			job, err := narrator.Resolve(narrator.ModeAuto, flags, a.cfg.Narrator, a.log)
			if err != nil {
				return err
			}

			pipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			result, err := pipeline.Auto(cmd.Context(), job)
			if err != nil {
				return err
			}

			a.summarize(result)

			return nil
		},
	}

	addVoiceFlags(cmd, &flags)
	cmd.Flags().StringVar(&flags.OutputDir, "output-dir", "", "directory for generated audio")
	cmd.Flags().StringVar(&flags.SaveStory, "save-story", "", "also write the generated story JSON to this path")

	return cmd
}

func newStoryCmd(a *app) *cobra.Command {
	var flags narrator.Flags

	cmd := &cobra.Command{
		Use:   "story <file.json|dir>",
		Short: "Narrate a story JSON document, or every document in a directory",
		Args:  primaryArg(narrator.ModeStory),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.InputPath = args[0]
			}

			job, err := narrator.Resolve(narrator.ModeStory, flags, a.cfg.Narrator, a.log)
			if err != nil {
				return err
			}

			pipeline, err := a.pipeline()
			if err != nil {
				return err
			}

			results, err := pipeline.Story(cmd.Context(), job)
			for _, result := range results {
				a.summarize(result)
			}

			return err
		},
	}

	cmd.Flags().StringVar(&flags.Device, "device", "", "processing device (cuda|cpu)")
	cmd.Flags().StringVar(&flags.OutputDir, "output-dir", "", "directory for generated audio")

	return cmd
}

func addVoiceFlags(cmd *cobra.Command, flags *narrator.Flags) {
	cmd.Flags().StringVar(&flags.VoicePrompt, "voice-prompt", "", "reference audio for voice cloning")
	cmd.Flags().StringVar(&flags.Device, "device", "", "processing device (cuda|cpu)")
}

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the text-to-speech model package and its runtime",
		Args:  usageArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.console.Info("installing", "pip", a.cfg.Install.Pip, "packages", a.cfg.Install.Packages)

			output, err := install.New(a.cfg.Install, a.runner, a.log).Install(cmd.Context())
			a.console.Debug(output)

			if err != nil {
				return err
			}

			a.console.Info("install complete")

			return nil
		},
	}
}

func newCleanCmd(a *app) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated .wav files from the output directory",
		Args:  usageArgs(0),
		RunE: func(*cobra.Command, []string) error {
			if outputDir == "" {
				outputDir = a.cfg.Narrator.OutputDir
			}

			report, err := fileutil.CleanAudio(outputDir)
			if report != nil {
				fileutil.PrintCleanupReport(a.stdout, report)
				a.log.Info("Removed %d audio file(s) from %s", len(report.RemovedFiles), outputDir)
			}

			return err
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to clean")

	return cmd
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the synthesis backend is reachable",
		Args:  usageArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := a.newBackend(a.cfg.TTS, a.log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			err = backend.HealthCheck(ctx)
			if err != nil {
				return err
			}

			a.console.Info("backend healthy", "backend", a.cfg.TTS.Backend)
			_, _ = fmt.Fprintln(a.stdout, "ok")

			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Narrate text published on NATS and reply with the stored audio key",
		Args:  usageArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	natsConnection, err := nats.Connect(a.cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", a.cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	js, err := jetstream.New(natsConnection)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	textStore, err := objectstore.New(ctx, js, a.cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		return err
	}

	audioStore, err := objectstore.New(ctx, js, a.cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	pipeline, err := a.pipeline()
	if err != nil {
		return err
	}

	a.console.Info("serving", "subject", a.cfg.NATS.NarrationSubject, "nats", a.cfg.NATS.URL)

	err = worker.NewNatsWorker(natsConnection, a.cfg.NATS.NarrationSubject, textStore, audioStore, pipeline, a.log).
		Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (a *app) pipeline() (*narrator.Pipeline, error) {
	backend, err := a.newBackend(a.cfg.TTS, a.log)
	if err != nil {
		return nil, err
	}

	return narrator.New(backend, a.cfg.Narrator, a.log, narrator.WithProgress(func(p narrator.Progress) {
		a.console.Info("synthesized", "chunk", fmt.Sprintf("%d/%d", p.Done, p.Total), "style", p.Style)
	})), nil
}

func (a *app) summarize(result *narrator.Result) {
	for _, file := range result.Files {
		_, _ = fmt.Fprintln(a.stdout, file)
	}

	a.console.Info("done",
		"name", result.Name,
		"segments", result.Segments,
		"files", len(result.Files),
		"size", fileutil.FormatFileSize(result.Bytes),
		"audio", result.Audio.Round(time.Millisecond),
		"elapsed", fileutil.FormatDuration(result.Elapsed.Seconds()),
	)
}
