package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relmake/pkg/buildinfo"
	"relmake/pkg/bus"
	"relmake/pkg/proc"
	gos3 "relmake/pkg/s3"
	"relmake/pkg/telemetry"
	"relmake/services/releaser"
)

const serviceName = "relmake"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(releaser.DefaultTargets()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(targets []releaser.BuildTarget) *cobra.Command {
	var app string
	names := releaser.TargetNames(targets)

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Cross-compile, package and publish release artifacts",
		Version:       buildinfo.FormattedVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(names, app) {
				return fmt.Errorf("invalid --app %q: choose from %s", app, strings.Join(names, ", "))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return run(ctx, app, targets, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&app, "app", releaser.AllApps, fmt.Sprintf("Application to build (%s)", strings.Join(names, ", ")))
	_ = cmd.RegisterFlagCompletionFunc("app", cobra.FixedCompletions(names, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}

func run(ctx context.Context, app string, targets []releaser.BuildTarget, stdout io.Writer) error {
	shutdownTelemetry, logger, err := telemetry.Init(ctx, serviceName, stdout)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	cfg, err := releaser.LoadConfig()
	if err != nil {
		return err
	}

	signer, err := releaser.NewSignerFromEnv()
	switch {
	case errors.Is(err, releaser.ErrNoSigningKey):
		signer = nil
	case err != nil:
		return fmt.Errorf("init signer: %w", err)
	default:
		logger.Printf("INFO signing manifests with key %s (age recipient %s)", signer.PublicKeyBase64(), signer.Recipient())
	}

	runner := &proc.ExecRunner{Stdout: stdout, Stderr: os.Stderr}

	r := &releaser.Releaser{
		Config:  cfg,
		Targets: targets,
		Runner:  runner,
		Signer:  signer,
		Logger:  logger,
	}

	if cfg.CI {
		uploader, err := newUploader(ctx, cfg, runner)
		if err != nil {
			return err
		}
		r.Uploader = uploader

		if cfg.NATSURL != "" {
			b, err := bus.New(cfg.NATSURL)
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			defer b.Close()
			r.Publisher = b
		}
	}

	if _, err := r.Run(ctx, app); err != nil {
		logger.Printf("ERROR %v", err)
		return err
	}
	return nil
}

func newUploader(ctx context.Context, cfg releaser.Config, runner proc.Runner) (releaser.Uploader, error) {
	if cfg.Uploader == "sdk" {
		client, err := gos3.NewClientFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		return &releaser.SDKUploader{Client: client}, nil
	}
	return &releaser.CLIUploader{Runner: runner}, nil
}
