package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Navigator sends the user agent to a URL: a browser redirect, or opening
// the system browser from a CLI.
type Navigator interface {
	Navigate(url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(url string) error

func (f NavigatorFunc) Navigate(url string) error { return f(url) }

// actuator performs login and logout.
type actuator struct {
	client   *Client
	store    Store
	nav      Navigator
	rec      *reconciler
	logger   *slog.Logger
	onLogout func()
}

// login navigates to the server's login endpoint. It changes no local
// state; the result arrives later through the oauth signal.
func (a *actuator) login(returnTo string) error {
	if a.nav == nil {
		return errors.New("session: no navigator configured")
	}
	if err := a.nav.Navigate(a.client.LoginURL(returnTo)); err != nil {
		return fmt.Errorf("session: navigating to login: %w", err)
	}
	return nil
}

// logout ends the session on the server and locally. The local side always
// happens: a failed request still leaves the client anonymous with an empty
// store, and the request error is returned.
func (a *actuator) logout(ctx context.Context) error {
	a.rec.beginLogout()
	defer a.rec.endLogout()

	var errs []error
	if err := a.client.Logout(ctx); err != nil {
		a.logger.Warn("logout request failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.store.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("session: clearing store: %w", err))
	}

	a.rec.completeLogout()
	if a.onLogout != nil {
		a.onLogout()
	}
	return errors.Join(errs...)
}
