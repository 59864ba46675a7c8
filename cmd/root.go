/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "adamara",
	Short: "AdAmara ad request intake and review backend",
	Long: `AdAmara collects advertisement requests from staff and lets
admins and reviewers triage them. Usage:

	adamara server
	adamara migrate up
	adamara worker
	adamara user create --email admin@example.com --password ... --role admin
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
