package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tablequery/internal/domain/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		tables []string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Issue an HS256 bearer token. The secret comes from token.secret in tqc.yaml
or TQC_TOKEN_SECRET and must match the server's JWT_SECRET.`,
		Example: `  TQC_TOKEN_SECRET=s3cret tqc token reporting --tables workers,companies`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Token.Secret == "" {
				return fmt.Errorf("token secret not configured (token.secret or TQC_TOKEN_SECRET)")
			}

			jwtCfg := auth.DefaultJWTConfig(a.cfg.Token.Secret)
			if a.cfg.Token.Issuer != "" {
				jwtCfg.Issuer = a.cfg.Token.Issuer
			}
			jwtCfg.AccessTokenTTL = a.cfg.Token.TTL
			if ttl > 0 {
				jwtCfg.AccessTokenTTL = ttl
			}

			token, expiresAt, err := auth.NewJWTService(jwtCfg).GenerateAccessToken(args[0], tables)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tables, "tables", []string{"*"}, "tables the token grants")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: token.ttl, 1h)")
	return cmd
}
