package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "github.com/airalab/xcm-robobank-prototype/internal/jwt_token"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/config"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <account>",
		Short: "Mint a bearer token for account using the server's JWT settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := domain.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
			token, err := tokens.GenerateAccessToken(account, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_TOKEN_TTL)")
	return cmd
}
