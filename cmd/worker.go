/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamara/apiserver/config"
	"github.com/adamara/apiserver/internal/logging"
	"github.com/adamara/apiserver/internal/mq"
	"github.com/adamara/apiserver/internal/notify"
	"github.com/spf13/cobra"
)

var workerDryRun bool

// workerCmd delivers notifications queued by servers running with
// NOTIFY_MODE=queue.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued requester notifications",
	Long: `Consumes notification events from the message broker and sends
them as email. Usage:

	adamara worker
	adamara worker --dry-run
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log, os.Stderr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var sender notify.Sender
		if workerDryRun {
			sender = notify.NewLogSender(logger)
		} else {
			client, err := notify.NewSMTPClient(cfg.Notify.SMTP)
			if err != nil {
				return err
			}
			mailer := notify.NewMailSender(client, cfg.Notify.From, cfg.Notify.FromName)
			defer mailer.Close()
			sender = mailer
		}

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		defer queue.Close()

		logger.Info("notification worker started", "backend", cfg.MQ.Backend, "channel", cfg.Notify.Channel)
		err = notify.NewConsumer(queue, cfg.Notify.Channel, sender, logger).Run(ctx)
		if err != nil && !errors.Is(err, ctx.Err()) {
			return err
		}
		logger.Info("notification worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().BoolVar(&workerDryRun, "dry-run", false, "log notifications instead of sending email")
}
