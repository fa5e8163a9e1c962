package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/models"
	"github.com/Skotchmaster/shop_auth/internal/service"
)

// accountCmd groups the operator commands. They go through the same services
// as the HTTP API, so refresh entries and events stay consistent.
func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage user accounts",
	}

	cmd.AddCommand(
		accountAction("lock", "Deactivate an account", func(a *app, cmd *cobra.Command, username string) error {
			return a.accounts.SetLocked(cmd.Context(), username, true)
		}),
		accountAction("unlock", "Reactivate an account", func(a *app, cmd *cobra.Command, username string) error {
			return a.accounts.SetLocked(cmd.Context(), username, false)
		}),
		accountAction("promote", "Grant ROLE_ADMIN", func(a *app, cmd *cobra.Command, username string) error {
			return a.accounts.SetRole(cmd.Context(), username, models.RoleAdmin)
		}),
		accountAction("demote", "Reset the role to ROLE_USER", func(a *app, cmd *cobra.Command, username string) error {
			return a.accounts.SetRole(cmd.Context(), username, models.RoleUser)
		}),
		createCmd(),
	)

	return cmd
}

func accountAction(use, short string, run func(*app, *cobra.Command, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			cmd.SetContext(logging.IntoContext(cmd.Context(), a.log))

			if err := run(a, cmd, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s done\n", args[0], use)
			return nil
		},
	}
}

func createCmd() *cobra.Command {
	var (
		password string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Register an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := logging.IntoContext(cmd.Context(), a.log)

			user, err := a.accounts.Register(ctx, service.Registration{Username: args[0], Password: password})
			if err != nil {
				return err
			}
			if admin {
				if err := a.accounts.SetRole(ctx, user.Username, models.RoleAdmin); err != nil {
					return err
				}
				user.Role = models.RoleAdmin
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (id=%d, role=%s)\n", user.Username, user.ID, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant ROLE_ADMIN after creation")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
