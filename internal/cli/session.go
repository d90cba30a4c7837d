package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/portfolio/internal/app"
	"github.com/sakif/portfolio/internal/config"
	"github.com/sakif/portfolio/internal/tui"
)

// sessionRun is what serve and join share once the flags are read.
type sessionRun struct {
	cfg     config.Config
	opts    app.Options
	withTUI bool
}

// runSession starts a session and blocks until the user quits (TUI) or the
// process is interrupted.
func runSession(cmd *cobra.Command, run sessionRun) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The TUI owns the terminal, so logs go to a file.
	var logOut io.Writer = cmd.ErrOrStderr()
	if run.withTUI {
		f, err := app.LogFile(run.cfg)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger := newLogger(run.cfg, logOut)

	run.opts.Config = run.cfg
	a, err := app.New(run.opts, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return err
	}

	if addr := a.Addr(); addr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Portfolio (%s) at http://%s\n", run.opts.Mode, addr)
	}

	if !run.withTUI {
		return a.Run(ctx)
	}

	// The server runs behind the TUI and stops when the TUI quits.
	tuiCtx, cancel := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- a.Run(tuiCtx) }()

	surface := tui.NewSurface()
	a.SetSurface(surface)
	tuiErr := tui.Run(tui.Options{
		Context: tuiCtx,
		Session: a,
		Surface: surface,
		Title:   a.Service().Title(),
	})
	cancel()

	if err := <-served; err != nil {
		logger.Error("session closed with errors", slog.String("error", err.Error()))
		return err
	}
	if tuiErr != nil && ctx.Err() == nil {
		return fmt.Errorf("viewer: %w", tuiErr)
	}
	return nil
}

// useTUI decides whether to draw the terminal viewer: the --tui flag when
// given, otherwise only when stdout is a terminal.
func useTUI(cmd *cobra.Command, flag bool) bool {
	if cmd.Flags().Changed("tui") {
		return flag
	}
	return isTerminal(os.Stdout)
}
