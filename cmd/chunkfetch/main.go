package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrise-io/go-chunkfetch/internal"
	"github.com/bitrise-io/go-chunkfetch/remote"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"
)

type sessionFactory func(ctx context.Context, path string, creds remote.Credentials, logger log.Logger) (remote.Session, error)

type app struct {
	logger     log.Logger
	envRepo    env.Repository
	osProxy    internal.OsProxy
	newSession sessionFactory

	verbose  bool
	progress bool
}

func newApp() *app {
	return &app{
		logger:     log.NewLogger(),
		envRepo:    env.NewRepository(),
		osProxy:    internal.RealOS{},
		newSession: remote.NewSession,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], newApp())
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, a *app) int {
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return a.report(err)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "chunkfetch",
		Short:         "Parallel chunked download of remote data objects",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger.EnableDebugLog(a.verbose)
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Show debug logs and full error details")
	root.PersistentFlags().BoolVar(&a.progress, "progress", false, "Print periodic progress updates")

	root.AddCommand(newFetchCommand(a))
	return root
}
