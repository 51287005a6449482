package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/questlog/internal/session"
)

const statusTimeout = 15 * time.Second

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether you are logged in",
		Args:  cobra.NoArgs,
		RunE:  a.runStatus,
	}
}

func (a *app) runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	ctrl := a.newController(nil)
	defer ctrl.Close()

	state, err := a.check(ctx, ctrl, session.MountOptions{})
	if err != nil {
		return err
	}
	a.printState(state)
	a.printWarnings(ctrl.Warnings())
	return nil
}

// check mounts ctrl and waits for the session check to settle.
func (a *app) check(ctx context.Context, ctrl *session.Controller, opts session.MountOptions) (session.AuthState, error) {
	if err := ctrl.Mount(ctx, opts); err != nil {
		return session.AuthState{}, fmt.Errorf("checking session: %w", err)
	}
	state, err := ctrl.WaitChecked(ctx)
	if err != nil {
		return state, fmt.Errorf("checking session: %w", err)
	}
	return state, nil
}
