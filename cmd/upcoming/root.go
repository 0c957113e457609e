package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/beekhof/upcoming/internal/aggregate"
	"github.com/beekhof/upcoming/internal/auth"
	"github.com/beekhof/upcoming/internal/calendar"
	"github.com/beekhof/upcoming/internal/config"
	"github.com/beekhof/upcoming/internal/logging"
	"github.com/beekhof/upcoming/internal/report"
)

// options carries the process I/O and the endpoints the command talks to.
type options struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// endpoint refreshes cached credentials. Zero means Google.
	endpoint   oauth2.Endpoint
	apiOptions []option.ClientOption
	now        func() time.Time
}

func defaultOptions() options {
	return options{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

func newRootCmd(opts options) *cobra.Command {
	var (
		configFile string
		flags      config.Overrides
	)

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Lists upcoming events from all of your Google calendars",
		Long: `upcoming signs in to a Google account, reads every calendar on it and
prints the events starting within the next few days as one list ordered by
start time.

On the first run a browser window asks for read-only calendar access. The
granted credential is cached in the token file and reused afterwards.

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (UPCOMING_*)
  3. Config file (--config)
  4. Defaults`,
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile, flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return run(cmd.Context(), cfg, opts)
		},
	}
	cmd.SetIn(opts.stdin)
	cmd.SetOut(opts.stdout)
	cmd.SetErr(opts.stderr)
	cmd.SetVersionTemplate(`{{printf "upcoming version %s\n" .Version}}`)

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "Path to a YAML or JSON config file")
	f.StringVar(&flags.CredentialsPath, "credentials", "", "Path to the OAuth client secret JSON from the Google Cloud Console (default \"credentials.json\")")
	f.StringVar(&flags.TokenPath, "token", "", "Path of the cached credential (default \"token.json\")")
	f.IntVar(&flags.Days, "days", 0, "Show events starting within this many days (default 5)")
	f.Int64Var(&flags.MaxResults, "max-results", 0, "Events requested per calendar (default 10)")
	f.IntVar(&flags.Concurrency, "concurrency", 0, "Calendars fetched at the same time (default 4)")
	f.StringVar(&flags.Format, "format", "", "Output format: "+strings.Join(report.Formats, ", ")+" (default \"text\")")
	f.BoolVar(&flags.NoBrowser, "no-browser", false, "Print the consent URL and read the code from stdin")
	f.StringVar(&flags.CallbackAddr, "callback-addr", "", "Listen address for the OAuth callback (default \"127.0.0.1:8080\")")
	f.DurationVar(&flags.AuthTimeout, "auth-timeout", 0, "How long to wait for consent (default 5m)")
	f.BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of upcoming",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "upcoming version %s\n", version)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	logger := logging.New(opts.stderr, cfg.Verbose)

	var flow auth.Flow
	if cfg.NoBrowser {
		flow = &auth.ManualFlow{In: opts.stdin, Out: opts.stderr}
	} else {
		flow = &auth.LoopbackFlow{
			Addr:        cfg.CallbackAddr,
			Timeout:     cfg.AuthTimeout,
			OpenBrowser: true,
			Out:         opts.stderr,
			Logger:      logger,
		}
	}

	manager := auth.NewManager(auth.ManagerConfig{
		Store:            auth.NewFileCredentialStore(cfg.TokenPath),
		ClientSecretPath: cfg.CredentialsPath,
		Flow:             flow,
		Endpoint:         opts.endpoint,
		Logger:           logger,
	})
	httpClient, err := manager.Authorize(ctx)
	if err != nil {
		return fmt.Errorf("failed to authorize: %w", err)
	}

	client, err := calendar.NewClient(ctx, httpClient, calendar.ClientOptions{
		MaxResults: cfg.MaxResults,
		Logger:     logger,
		APIOptions: opts.apiOptions,
	})
	if err != nil {
		return err
	}

	aggregator := aggregate.New(client, aggregate.Config{
		Horizon:     cfg.Horizon(),
		Concurrency: cfg.Concurrency,
		Now:         opts.now,
		Logger:      logger,
	})
	events, err := aggregator.Aggregate(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}
	logger.Debug("aggregated events", logging.Count(len(events)))

	return report.Write(opts.stdout, cfg.Format, events)
}
