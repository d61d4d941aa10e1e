package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pazami01/sptb/api"
	"github.com/pazami01/sptb/gateway"
	"github.com/pazami01/sptb/session"
	"github.com/pazami01/sptb/tokenstore"
	"github.com/pazami01/sptb/tui"
)

var errNotLoggedIn = errors.New("not logged in: run `sptb login` first")

// app is the wiring of one command invocation.
type app struct {
	cfg     *config
	log     zerolog.Logger
	display tui.Displayer
	store   tokenstore.Store
	file    *tokenstore.File // nil when the tokens come from the environment
	session *session.Session
	gateway *gateway.Gateway
	api     *api.Client
}

func newApp(cfg *config, log zerolog.Logger, d tui.Displayer) (*app, error) {
	a := &app{cfg: cfg, log: log, display: d}

	if cfg.ephemeral() {
		a.store = tokenstore.NewMemory(cfg.SeedAccess, cfg.SeedRefresh)
		log.Debug().Msg("using tokens from the environment")
	} else {
		a.file = tokenstore.NewFile(cfg.TokenFile, cfg.Profile)
		a.store = a.file
	}

	sess, err := session.New(a.store, session.WithLogger(log.With().Str("component", "session").Logger()))
	if err != nil {
		return nil, err
	}
	a.session = sess

	client, err := gateway.NewRetryClient()
	if err != nil {
		return nil, err
	}

	opts := []gateway.Option{
		gateway.WithClient(client),
		gateway.WithSessionManager(sess),
		gateway.WithObserver(d),
		gateway.WithTimeout(cfg.Timeout),
		gateway.WithLogger(log.With().Str("component", "gateway").Logger()),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, gateway.WithRateLimit(cfg.RateLimit, max(1, int(cfg.RateLimit))))
	}

	gw, err := gateway.New(cfg.APIURL, a.store, opts...)
	if err != nil {
		return nil, err
	}
	a.gateway = gw
	a.api = api.New(gw)
	return a, nil
}

// hasTokens reports whether any call could be authenticated, either directly or
// after a refresh.
func (a *app) hasTokens() bool {
	pair, err := a.store.Get()
	if err != nil {
		return false
	}
	return pair.HasAccess() || pair.HasRefresh()
}

// commandFunc does the work of a command. Results go to out; the returned summary
// is shown by the displayer when the command succeeds.
type commandFunc func(ctx context.Context, a *app, out io.Writer) (summary string, err error)

type runMode int

const (
	// runAnonymous skips the startup verify (login, logout).
	runAnonymous runMode = iota
	// runPassive verifies the stored token but carries on whatever the result.
	runPassive
	// runAuthenticated verifies the stored token and requires a session.
	runAuthenticated
)

// run resolves the configuration, picks the TUI or plain output and executes fn.
func (c *cli) run(cmd *cobra.Command, mode runMode, fn commandFunc) error {
	cfg, err := loadConfig(c.flags)
	if err != nil {
		return err
	}
	warnPlaintext(c.stderr, cfg.APIURL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useTUI := !cfg.Plain && !cfg.JSON && c.isTTY()
	stderr := &lockedWriter{w: c.stderr}

	log, closer, err := newLogger(cfg, stderr, useTUI)
	if err != nil {
		return err
	}
	defer closer.Close()

	if !useTUI {
		return c.execute(ctx, cfg, log, tui.NewPlainDisplayer(stderr), mode, fn, c.stdout)
	}

	// Run TUI program on stderr so stdout pipes are not corrupted
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(tui.NewModel(), tea.WithOutput(c.stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(c.stderr, "TUI error: %v\n", err)
		}
	}()

	// Results are held back until the TUI has released the terminal.
	var out bytes.Buffer
	runErr := c.execute(ctx, cfg, log, tui.NewProgramDisplayer(p), mode, fn, &out)
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()

	if _, err := io.Copy(c.stdout, &out); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (c *cli) execute(
	ctx context.Context,
	cfg *config,
	log zerolog.Logger,
	d tui.Displayer,
	mode runMode,
	fn commandFunc,
	out io.Writer,
) error {
	fail := func(err error) error {
		d.Fatal(err)
		return reportedError{err: err}
	}

	a, err := newApp(cfg, log, d)
	if err != nil {
		return fail(err)
	}

	unsubscribe := a.session.OnChange(func(s session.State) {
		d.SessionChanged(s.String())
	})
	defer unsubscribe()

	// Another process may log in or out while this command runs.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	var g errgroup.Group
	if a.file != nil {
		g.Go(func() error {
			if err := tokenstore.Watch(watchCtx, a.file.Path(), a.session.Resync); err != nil {
				log.Warn().Err(err).Msg("token file watch stopped")
			}
			return nil
		})
	}
	defer func() {
		cancelWatch()
		_ = g.Wait()
	}()

	if mode != runAnonymous {
		if err := a.gateway.Restore(ctx); err != nil {
			log.Info().Err(err).Msg("access token could not be restored")
			d.VerifyFailed(err)
		}
	}

	if mode != runAnonymous && a.session.Authenticated() {
		d.Verifying()
		if err := a.gateway.Verify(ctx); err != nil {
			log.Info().Err(err).Msg("stored token could not be verified")
			d.VerifyFailed(err)
		} else {
			d.VerifyOK()
		}
	}

	if mode == runAuthenticated && !a.hasTokens() {
		return fail(errNotLoggedIn)
	}

	summary, err := fn(ctx, a, out)
	if err != nil {
		var apiErr *gateway.APIError
		switch {
		case errors.Is(err, gateway.ErrSessionExpired):
			log.Debug().Err(err).Msg("command ended by session expiry")
		case errors.As(err, &apiErr):
			log.Debug().Err(err).Int("status", apiErr.Status).Msg("api call rejected")
			d.APICallFailed(err)
			return reportedError{err: err}
		}
		return fail(err)
	}
	d.Done(summary)
	return nil
}
