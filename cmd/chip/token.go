package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loubnaelmalali29-code/chip/internal/auth"
)

func tokenCmd() *cobra.Command {
	var expiresIn time.Duration
	cmd := &cobra.Command{
		Use:   "token <operator>",
		Short: "Issue an operator token for the send API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret (or CHIP_JWT_SECRET) is required")
			}
			ttl := expiresIn
			if ttl <= 0 {
				ttl = cfg.Auth.ExpiresIn()
			}
			token, expiresAt, err := auth.GenerateToken(args[0], cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Printf("expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime (default: auth.jwt_expires_in)")
	return cmd
}
