// Package cli implements brewmapctl, the command line client for brewmap.
// Commands run the service layer in process against the hosted platform,
// signed in as the user whose session is stored on disk.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/brewmap/brewmap/internal/app"
	"github.com/brewmap/brewmap/internal/config"
	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/session"
	"github.com/brewmap/brewmap/supabase/client"
)

// standalone marks commands that run without config or a session.
const standalone = "standalone"

// Options configure the command tree. Zero values read the real
// environment and terminal.
type Options struct {
	LoadConfig func(envFile string) (*config.Config, error)
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type env struct {
	opts    Options
	envFile string
	asJSON  bool
	verbose bool

	cfg      *config.Config
	app      *app.Application
	sessions *session.Manager
	out      *Printer
}

// NewRootCommand builds the brewmapctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = func(envFile string) (*config.Config, error) { return config.Load(envFile) }
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	e := &env{opts: opts}

	root := &cobra.Command{
		Use:           "brewmapctl",
		Short:         "Discover, review and curate cafes from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e.out = NewPrinter(opts.Stdout, opts.Stderr, e.asJSON)
			if cmd.Annotations[standalone] != "" {
				return nil
			}
			return e.setup(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if e.app == nil {
				return nil
			}
			return e.app.Close()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&e.envFile, "env", ".env", "dotenv file to load before the environment")
	flags.BoolVar(&e.asJSON, "json", false, "print results as JSON")
	flags.BoolVarP(&e.verbose, "verbose", "v", false, "log platform calls")

	root.AddCommand(
		e.signupCommand(),
		e.loginCommand(),
		e.logoutCommand(),
		e.whoamiCommand(),
		e.cafesCommand(),
		e.bookmarksCommand(),
		e.followCommand(),
		e.unfollowCommand(),
		e.feedCommand(),
		e.submissionsCommand(),
		e.reconcileCommand(),
		completionCommand(),
	)
	return root
}

// Execute runs brewmapctl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand(Options{}).ExecuteContext(ctx)
}

func (e *env) setup(ctx context.Context) error {
	cfg, err := e.opts.LoadConfig(e.envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg

	level := "error"
	if e.verbose {
		level = "debug"
	}
	logger := logging.New("brewmapctl", level, "text")

	a, err := app.New(ctx, cfg, app.Options{Logger: logger, HTTPClient: e.opts.HTTPClient})
	if err != nil {
		return err
	}
	e.app = a

	path := cfg.SessionFile
	if path == "" {
		if path, err = session.DefaultPath(); err != nil {
			return err
		}
	}
	e.sessions = session.NewManager(session.NewFileStore(path), a.Auth)
	if _, err := e.sessions.Load(ctx); err != nil && !errors.Is(err, session.ErrSessionExpired) {
		return err
	}
	return nil
}

// signedIn returns a context that runs platform calls as the stored user.
func (e *env) signedIn(ctx context.Context) (context.Context, *domain.Session, error) {
	token, err := e.sessions.AccessToken(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotSignedIn) || errors.Is(err, session.ErrSessionExpired) {
			return nil, nil, fmt.Errorf("%w: run `brewmapctl login` first", err)
		}
		return nil, nil, err
	}
	return client.WithAccessToken(ctx, token), e.sessions.Current(), nil
}

// signedInAdmin is signedIn restricted to admins.
func (e *env) signedInAdmin(ctx context.Context) (context.Context, *domain.Session, error) {
	ctx, s, err := e.signedIn(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !s.IsAdmin {
		return nil, nil, fmt.Errorf("%s is not an admin", s.User.Email)
	}
	return ctx, s, nil
}

// optionalUser returns the stored user's context when signed in, and ctx
// unchanged otherwise.
func (e *env) optionalUser(ctx context.Context) (context.Context, *domain.Session) {
	signed, s, err := e.signedIn(ctx)
	if err != nil {
		return ctx, nil
	}
	return signed, s
}

// resolveUser accepts a username or a user id.
func (e *env) resolveUser(ctx context.Context, ref string) (*domain.Profile, error) {
	if p, err := e.app.Profiles.GetByUsername(ctx, ref); err == nil {
		return p, nil
	}
	return e.app.Profiles.GetProfile(ctx, ref)
}
