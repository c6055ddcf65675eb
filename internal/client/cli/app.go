package cli

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/mzexplorer/internal/client/config"
	"github.com/dmitrijs2005/mzexplorer/internal/client/history"
	"github.com/dmitrijs2005/mzexplorer/internal/logging"
	"github.com/dmitrijs2005/mzexplorer/internal/session"
)

// App wires the session, the profile store and the query history behind an
// interactive prompt.
type App struct {
	config   *config.Config
	profiles *config.Store
	session  *session.Session
	history  *history.Store
	log      logging.Logger
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	log := logging.NewTextLogger(os.Stderr, parseLevel(c.LogLevel))

	profiles, err := config.NewStore(c.ProfilesPath)
	if err != nil {
		return nil, err
	}

	hist, err := history.Open(ctx, c.HistoryPath)
	if err != nil {
		return nil, err
	}

	sess := session.New(profiles, log, session.Options{
		AdminEndpoint:  c.AdminEndpoint,
		CloudEndpoint:  c.CloudEndpoint,
		ConnectTimeout: c.ConnectTimeout,
	})

	return &App{
		config:   c,
		profiles: profiles,
		session:  sess,
		history:  hist,
		log:      log,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run loads the context for the selected profile (if any) and enters the
// prompt loop. Load failures are reported but do not prevent the prompt:
// the user can fix the profile interactively.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.watchEvents(ctx)

	if err := a.session.LoadContext(ctx); err != nil {
		printlnFn(err.Error())
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

// Close releases the pool and the history database.
func (a *App) Close() error {
	a.session.Close()
	return a.history.Close()
}

func (a *App) status() string {
	name := a.session.ProfileName()
	if name == "" {
		return "no profile"
	}
	s := name
	if cluster := a.session.Cluster(); cluster != "" {
		s += " " + cluster
	}
	if db := a.session.Database(); db != "" {
		s += "/" + db
		if schema := a.session.Schema(); schema != "" {
			s += "." + schema
		}
	}
	return s
}

// watchEvents logs state transitions as the session moves through its
// lifecycle. Errors surfaced here are informational; the command that
// triggered the transition reports its own failure.
func (a *App) watchEvents(ctx context.Context) {
	events := a.session.Subscribe()
	defer a.session.Unsubscribe(events)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.State == session.StateError && ev.Err != nil {
				a.log.Warn(ctx, "session state changed", "state", ev.State.String(), "error", ev.Err.Error())
			} else {
				a.log.Debug(ctx, "session state changed", "state", ev.State.String())
			}
		case <-ctx.Done():
			return
		}
	}
}
