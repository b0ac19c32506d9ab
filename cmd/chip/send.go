package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/loubnaelmalali29-code/chip/internal/handlers"
	"github.com/loubnaelmalali29-code/chip/internal/logger"
)

func sendCmd() *cobra.Command {
	var (
		req     handlers.SendRequest
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message through the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)

			if err := validator.New(validator.WithRequiredStructEnabled()).Struct(req); err != nil {
				return fmt.Errorf("invalid message: %w", err)
			}
			registry, err := buildRegistry(logger.L, cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			receipt, err := handlers.NewDispatcher(registry).Send(ctx, req.Provider, req.Message())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(receipt)
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "", "provider key (default: messaging.provider)")
	cmd.Flags().StringVar(&req.Recipient, "to", "", "recipient phone number or email")
	cmd.Flags().StringVar(&req.GroupID, "group", "", "group id")
	cmd.Flags().StringVar(&req.Text, "text", "", "message text")
	cmd.Flags().StringVar(&req.Service, "service", "", "imessage or sms")
	cmd.Flags().StringSliceVar(&req.Attachments, "attachment", nil, "attachment URL (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall send timeout")
	return cmd
}
