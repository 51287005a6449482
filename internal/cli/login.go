package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/questlog/internal/session"
)

func (a *app) newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in through your browser",
		Long: `login opens the QuestLog login page in your browser. When the identity
provider sends you back, the session is stored in the local state file.`,
		Args: cobra.NoArgs,
		RunE: a.runLogin,
	}
	cmd.Flags().Bool("no-browser", false, "print the login URL instead of opening a browser")
	return cmd
}

func (a *app) runLogin(cmd *cobra.Command, args []string) error {
	noBrowser, _ := cmd.Flags().GetBool("no-browser")

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.LoginTimeout)
	defer cancel()

	cb, err := startCallbackServer(ctx)
	if err != nil {
		return err
	}
	defer cb.stop()

	nav := session.NavigatorFunc(func(url string) error {
		fmt.Fprintf(a.out, "Open this URL to log in:\n\n  %s\n\n", url)
		if noBrowser || !a.cfg.ShouldOpenBrowser() {
			return nil
		}
		if err := a.openBrowser(url); err != nil {
			a.logger.Warn("could not open browser", slog.String("error", err.Error()))
		}
		return nil
	})

	ctrl := a.newController(nav)
	defer ctrl.Close()

	if err := ctrl.Login(cb.url); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Waiting for the browser to come back...")

	result, err := cb.wait(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("login timed out after %s", a.cfg.LoginTimeout)
	case err != nil:
		return err
	case result.Denied:
		return errors.New("login was denied by the identity provider")
	case result.Session == "":
		return errors.New("the server did not return a session; check that it accepts loopback return URLs")
	}

	if err := a.store.Set(session.KeySession, result.Session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	state, err := a.check(ctx, ctrl, session.MountOptions{OAuthSignal: true})
	if err != nil {
		return err
	}
	a.printState(state)
	a.printWarnings(ctrl.Warnings())
	if state.Kind() != session.Authenticated {
		return errors.New("login did not produce a valid session")
	}
	return nil
}
