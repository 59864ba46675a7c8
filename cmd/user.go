/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/adamara/apiserver/config"
	"github.com/adamara/apiserver/internal/db"
	"github.com/adamara/apiserver/internal/logging"
	"github.com/adamara/apiserver/internal/services"
	"github.com/adamara/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var newUser services.RegisterInput

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage staff accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a staff account",
	Long: `Creates a staff account directly in the database. Use it to
bootstrap the first admin. Usage:

	adamara user create --name "Ada" --email ada@example.com --password secret123 --role admin
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log, os.Stderr)

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		users := services.NewUserService(store.NewUserRepository(conn), logger)
		user, err := users.Register(cmd.Context(), newUser)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Email, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	flags := userCreateCmd.Flags()
	flags.StringVar(&newUser.Name, "name", "", "display name")
	flags.StringVar(&newUser.Email, "email", "", "login email")
	flags.StringVar(&newUser.Password, "password", "", "password, at least 8 characters")
	flags.StringVar(&newUser.Role, "role", "reviewer", "admin or reviewer")
	flags.StringVar(&newUser.Department, "department", "", "department")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
}
