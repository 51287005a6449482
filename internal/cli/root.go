// Package cli implements the questlog command: log in from a terminal,
// check the session and log out.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/questlog/internal/config"
	"github.com/sakif/questlog/internal/session"
)

const requestTimeout = 30 * time.Second

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath  string
	verbose     bool
	out         io.Writer
	errOut      io.Writer
	openBrowser func(url string) error

	cfg    *config.Client
	store  *session.FileStore
	logger *slog.Logger
}

// Execute runs the questlog command line.
func Execute(version string) error {
	root := newRootCmd(&app{
		out:         os.Stdout,
		errOut:      os.Stderr,
		openBrowser: OpenBrowser,
	})
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "questlog",
		Short: "QuestLog from the terminal",
		Long: `questlog logs you in to QuestLog through your browser and keeps the
session in a local state file, so other tools can act on your behalf.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.load() },
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default <user config dir>/questlog/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.AddCommand(a.newStatusCmd(), a.newLoginCmd(), a.newLogoutCmd())
	return root
}

func (a *app) load() error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	if a.configPath == "" {
		dir, err := config.DefaultClientDir()
		if err != nil {
			return err
		}
		a.configPath = filepath.Join(dir, "config.yaml")
	}

	cfg, err := config.LoadClient(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	store, err := session.OpenFileStore(cfg.StatePath)
	if err != nil {
		return err
	}
	a.store = store

	a.logger.Debug("loaded config",
		slog.String("path", a.configPath),
		slog.String("api_base", cfg.APIBase),
		slog.String("state", cfg.StatePath),
	)
	return nil
}

// newController builds a session controller that presents both the cookie
// (kept in a per-process jar) and the stored session token.
func (a *app) newController(nav session.Navigator) *session.Controller {
	// cookiejar.New only fails on a bad PublicSuffixList option.
	jar, _ := cookiejar.New(nil)
	client := session.NewClient(a.cfg.APIBase,
		session.WithHTTPClient(&http.Client{Jar: jar, Timeout: requestTimeout}),
		session.WithCredential(session.StoreCredential(a.store)),
	)
	return session.NewController(client, a.store, nav, session.WithLogger(a.logger))
}

func (a *app) printState(state session.AuthState) {
	p, ok := state.Profile()
	if !ok {
		fmt.Fprintln(a.out, "Not logged in. Run `questlog login` to log in.")
		return
	}

	name := p.Name
	if name == "" {
		name = p.Email
	}
	if name == "" {
		name = p.UserID
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", name, p.UserID)
	fmt.Fprintf(a.out, "  level %d, %d XP, %d tasks completed\n", p.Level, p.XP, p.TasksCompleted)
}

var warningText = map[session.Warning]string{
	session.WarningCookiesBlocked: "the server answered without a user although one was expected; " +
		"cookies may be blocked between you and the server",
	session.WarningLegacyCredentials: "the state file holds credentials from an older questlog; " +
		"run `questlog logout` to clear them",
}

func (a *app) printWarnings(warnings []session.Warning) {
	for _, w := range warnings {
		text, ok := warningText[w]
		if !ok {
			text = string(w)
		}
		fmt.Fprintf(a.out, "Warning: %s\n", text)
	}
}
