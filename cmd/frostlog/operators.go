package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MarcoPoloResearchLab/frostlog/internal/users"
)

func newOperatorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operators",
		Short: "Manage dashboard accounts",
	}
	cmd.AddCommand(newOperatorsAddCommand())
	return cmd
}

func newOperatorsAddCommand() *cobra.Command {
	var (
		roleName      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an operator or reset its password and role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := users.ParseRole(roleName)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), sharedAccess)
			if err != nil {
				return err
			}
			defer rt.Close()

			password, err := readSecret(cmd.InOrStdin(), passwordStdin, "Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			service, err := users.NewService(users.ServiceConfig{Database: rt.db})
			if err != nil {
				return err
			}
			operator, err := service.Upsert(cmd.Context(), args[0], password, role)
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("operator %s saved with role %s", operator.Username, operator.Role)))
			return nil
		},
	}
	cmd.Flags().StringVar(&roleName, "role", string(users.RoleViewer), "admin or viewer")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from standard input")
	return cmd
}
