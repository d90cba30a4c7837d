// Package app assembles one portfolio session: the event loop, the slide
// store and engine, the presenter, the journal, audio, the HTTP server and
// (when sharing) the channel.
//
// THE ROLES:
//
//	Solo   → no channel; the journal is the only source of slides
//	Host   → a channel.Hub behind /share/ws relays every peer's events
//	Guest  → a channel.Client dialed to a host; local slides are cleared
//
// A guest whose handshake fails keeps going solo; the role stays undecided.
//
// LIFECYCLE:
// Start opens the journal, runs the loop and binds the server. Run serves
// until ctx is cancelled, then Close saves the edited slides and tears the
// rest down. Save errors are the one failure reported to the user at exit.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/sakif/portfolio/internal/audio"
	"github.com/sakif/portfolio/internal/auth"
	"github.com/sakif/portfolio/internal/channel"
	"github.com/sakif/portfolio/internal/config"
	"github.com/sakif/portfolio/internal/engine"
	"github.com/sakif/portfolio/internal/handler"
	"github.com/sakif/portfolio/internal/loop"
	"github.com/sakif/portfolio/internal/origin"
	"github.com/sakif/portfolio/internal/origin/sqlite"
	"github.com/sakif/portfolio/internal/presenter"
	"github.com/sakif/portfolio/internal/protocol"
	"github.com/sakif/portfolio/internal/server"
	"github.com/sakif/portfolio/internal/service"
	"github.com/sakif/portfolio/internal/session"
	"github.com/sakif/portfolio/internal/slidestore"
)

// Mode is how the session starts.
type Mode int

const (
	Solo Mode = iota
	Host
	Guest
)

func (m Mode) String() string {
	switch m {
	case Host:
		return "host"
	case Guest:
		return "guest"
	}
	return "solo"
}

// DefaultJoinTimeout bounds the invite request and the websocket dial
// together. A host that does not answer in time leaves the session solo.
const DefaultJoinTimeout = 10 * time.Second

// Options configure a session.
type Options struct {
	Config config.Config
	Mode   Mode

	// Addr overrides the listen address built from server.port.
	Addr string

	// HostURL and Passphrase are used by a guest.
	HostURL    string
	Passphrase string

	// JoinTimeout bounds the guest handshake. Default: DefaultJoinTimeout.
	JoinTimeout time.Duration

	// Surface, if set, receives every frame.
	Surface presenter.Surface

	// Fs holds payload files. Default: the OS filesystem.
	Fs afero.Fs
	// Journal replaces the sqlite journal (tests).
	Journal origin.Store

	// Headless sessions do not bind the HTTP server. The CLI uses them for
	// one-shot commands such as export.
	Headless bool
}

// App is a running session.
type App struct {
	opts   Options
	logger *slog.Logger

	fs      afero.Fs
	journal origin.Store
	db      *sqlite.DB

	loop       *loop.Loop
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
	state      *session.State
	slides     *slidestore.Store
	eng        *engine.Engine
	ctl        *presenter.Controller
	portfolio  *service.PortfolioService
	hub        *channel.Hub
	client     *channel.Client
	server     *server.Server
	listener   net.Listener
	closeOnce  sync.Once
	closeError error
}

// New builds the session components. Nothing runs until Start.
func New(opts Options, logger *slog.Logger) (*App, error) {
	cfg := opts.Config
	colors, err := cfg.Colors()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	a := &App{
		opts:    opts,
		logger:  logger,
		fs:      opts.Fs,
		journal: opts.Journal,
	}

	if a.journal == nil {
		if dir := filepath.Dir(cfg.Store.DBPath); dir != "" {
			if err := opts.Fs.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("app: creating journal dir: %w", err)
			}
		}
		db, err := sqlite.New(cfg.Store.DBPath, opts.Fs, filepath.Join(cfg.Store.DataDir, "documents"))
		if err != nil {
			return nil, fmt.Errorf("app: opening journal: %w", err)
		}
		a.db = db
		a.journal = db
	}

	a.loop = loop.New(0, logger)
	a.state = session.New(cfg.Profile.Nickname, colors)
	a.slides = slidestore.New()
	a.eng = engine.New(a.slides, a.state, a.loop, logger)

	workDir := filepath.Join(cfg.Store.DataDir, "work")
	if err := opts.Fs.MkdirAll(workDir, 0o755); err != nil {
		a.closeJournal()
		return nil, fmt.Errorf("app: creating work dir: %w", err)
	}
	a.portfolio = service.NewPortfolioService(a.journal, opts.Fs, a.slides, a.state, workDir, cfg.Slideshow.Title, logger)

	popts := presenter.Options{
		Surface:  opts.Surface,
		Width:    cfg.Slideshow.Width,
		Height:   cfg.Slideshow.Height,
		Interval: cfg.IntervalDuration(),
	}
	if !cfg.Audio.Disabled {
		device := audio.NewCommandDevice(cfg.AudioCommands(), filepath.Join(cfg.Store.DataDir, "recordings"), logger)
		popts.Recorder = device
		popts.Player = device
	}
	a.ctl = presenter.New(a.eng, a.loop, a.portfolio, popts, logger)

	routes, err := a.routes()
	if err != nil {
		a.closeJournal()
		return nil, err
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":" + strconv.Itoa(cfg.Server.Port)
	}
	a.server = server.New(server.Config{Addr: addr}, routes, logger)
	return a, nil
}

func (a *App) routes() (server.Routes, error) {
	title := a.portfolio.Title()
	viewer, err := handler.NewViewerHandler(a.ctl, a.loop, title, a.logger)
	if err != nil {
		return server.Routes{}, fmt.Errorf("app: %w", err)
	}
	routes := server.Routes{
		Slideshow: handler.NewSlideshowHandler(a.ctl, a.portfolio, a.loop, a.logger),
		Viewer:    viewer,
	}
	if a.opts.Mode != Host {
		return routes, nil
	}

	share := a.opts.Config.Share
	secret := share.Secret
	if secret == "" {
		secret = randomSecret()
		a.logger.Debug("no share secret configured, using a per-process key")
	}
	ttl, err := a.opts.Config.TokenTTL()
	if err != nil {
		return server.Routes{}, fmt.Errorf("app: %w", err)
	}
	tokens, err := auth.NewTokenService(secret, ttl)
	if err != nil {
		return server.Routes{}, fmt.Errorf("app: %w", err)
	}
	shareSvc, err := service.NewShareService(tokens, auth.NewPasswordService(), share.Passphrase, a.logger)
	if err != nil {
		return server.Routes{}, fmt.Errorf("app: %w", err)
	}

	a.hub = channel.NewHub(a.deliver, channel.HubOptions{
		QueueSize:     share.QueueSize,
		RatePerSecond: float64(share.RateLimit),
		Burst:         share.RateLimit * 4,
	}, a.logger)

	routes.Share = handler.NewShareHandler(shareSvc, title, a.logger)
	routes.Hub = a.hub
	routes.Tokens = tokens
	return routes, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// deliver hands an inbound frame to the engine on the loop goroutine.
// Frames that reach a guest before it has switched role are dropped; the
// host replays everything once the guest announces itself.
func (a *App) deliver(m protocol.Message) {
	a.loop.Post(func() {
		if a.opts.Mode == Guest && a.state.Role() != session.Guest {
			return
		}
		a.eng.Handle(m)
	})
}

// Controller is the presenter. Call it only through Do or Post.
func (a *App) Controller() *presenter.Controller { return a.ctl }

// Service is the journal adapter. Call it only through Do.
func (a *App) Service() *service.PortfolioService { return a.portfolio }

// State is the session state. Call it only through Do.
func (a *App) State() *session.State { return a.state }

// SetSurface switches the presenter to s and draws the current frame.
func (a *App) SetSurface(s presenter.Surface) {
	a.loop.Post(func() { a.ctl.SetSurface(s) })
}

// Do runs fn on the loop and waits.
func (a *App) Do(ctx context.Context, fn func() error) error {
	return a.loop.Do(ctx, fn)
}

// Post runs fn on the loop without waiting.
func (a *App) Post(fn func()) bool {
	return a.loop.Post(fn)
}

// Addr is the bound address, valid after Start.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Start runs the loop, settles the role and binds the server.
func (a *App) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	a.stopLoop = cancel
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		_ = a.loop.Run(loopCtx)
	}()

	if err := a.settleRole(ctx); err != nil {
		a.shutdown()
		return err
	}

	if a.opts.Headless {
		return nil
	}
	ln, err := a.server.Listen()
	if err != nil {
		a.shutdown()
		return fmt.Errorf("app: %w", err)
	}
	a.listener = ln
	return nil
}

// settleRole moves the session into its starting role. A guest falls back
// to solo when the host cannot be reached.
func (a *App) settleRole(ctx context.Context) error {
	switch a.opts.Mode {
	case Host:
		return a.loop.Do(ctx, func() error {
			if err := a.state.BecomeHost(); err != nil {
				return err
			}
			a.eng.SetTransport(a.hub)
			return a.ctl.Rescan(ctx)
		})

	case Guest:
		if err := a.joinHost(ctx); err != nil {
			a.logger.Warn("could not join, continuing solo",
				slog.String("host", a.opts.HostURL),
				slog.String("error", err.Error()),
			)
			return a.loop.Do(ctx, func() error { return a.ctl.Rescan(ctx) })
		}
		return nil
	}

	return a.loop.Do(ctx, func() error { return a.ctl.Rescan(ctx) })
}

// joinHost runs the guest handshake: invite, dial, then role switch on the
// loop. Nothing on the loop changes unless both network steps succeed.
func (a *App) joinHost(ctx context.Context) error {
	timeout := a.opts.JoinTimeout
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	invite, err := channel.RequestInvite(dialCtx, nil, a.opts.HostURL, a.opts.Config.Profile.Nickname, a.opts.Passphrase)
	if err != nil {
		return err
	}
	client, err := channel.Dial(dialCtx, a.opts.HostURL, invite.Token, a.deliver, a.logger)
	if err != nil {
		return err
	}
	a.client = client

	err = a.loop.Do(ctx, func() error {
		if err := a.state.BecomeGuest(); err != nil {
			return err
		}
		a.slides.Clear()
		a.eng.SetTransport(client)
		a.eng.ShareNick()
		a.ctl.Refresh()
		return nil
	})
	if err != nil {
		client.Close()
		a.client = nil
		return err
	}

	a.logger.Info("joined share", slog.String("host", a.opts.HostURL), slog.String("title", invite.Title))
	go a.watchHost(client)
	return nil
}

// watchHost logs when the channel to the host goes away. The guest keeps
// showing what it has; there is no reconnect.
func (a *App) watchHost(c *channel.Client) {
	<-c.Done()
	if err := c.Err(); err != nil {
		a.logger.Warn("host connection lost", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("host connection closed")
}

// Run serves until ctx is cancelled and then closes the session.
// Start must have succeeded.
func (a *App) Run(ctx context.Context) error {
	if a.listener == nil {
		<-ctx.Done()
		return a.Close()
	}
	serveErr := a.server.Serve(ctx, a.listener)
	return errors.Join(serveErr, a.Close())
}

// Close saves edited slides and releases everything. It is safe to call
// more than once; later calls return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.hub != nil {
			a.hub.Close()
		}
		if a.client != nil {
			a.client.Close()
		}
		if a.loopDone != nil {
			errs = append(errs, a.save())
		}
		a.shutdown()
		errs = append(errs, a.closeJournal())
		a.closeError = errors.Join(errs...)
	})
	return a.closeError
}

func (a *App) save() error {
	var saved int
	err := a.loop.Do(context.Background(), func() error {
		n, err := a.portfolio.SaveChanges(context.Background())
		saved = n
		return err
	})
	if err != nil {
		return fmt.Errorf("app: saving slides: %w", err)
	}
	if saved > 0 {
		a.logger.Info("slides saved", slog.Int("count", saved))
	}
	return nil
}

func (a *App) shutdown() {
	if a.stopLoop != nil {
		a.stopLoop()
		<-a.loopDone
		a.stopLoop = nil
	}
	if a.listener != nil {
		// Already closed after Serve; this covers Start without Run.
		_ = a.listener.Close()
	}
}

func (a *App) closeJournal() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// LogFile opens the log file used while the TUI owns the terminal.
func LogFile(cfg config.Config) (*os.File, error) {
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: creating data dir: %w", err)
	}
	path := filepath.Join(cfg.Store.DataDir, "portfolio.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("app: opening log file: %w", err)
	}
	return f, nil
}
