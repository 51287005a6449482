package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear local state",
		Args:  cobra.NoArgs,
		RunE:  a.runLogout,
	}
}

func (a *app) runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	ctrl := a.newController(nil)
	defer ctrl.Close()

	err := ctrl.Logout(ctx)
	fmt.Fprintln(a.out, "Logged out. Local state cleared.")
	if err != nil {
		return fmt.Errorf("the server could not be told: %w", err)
	}
	return nil
}
