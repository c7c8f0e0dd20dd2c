package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		secret string
		role   string
		email  string
		issuer string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint an HS256 bearer token accepted by AUTH_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signed, err := mintToken(secret, args[0], role, email, issuer, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", envOr("AUTH_JWT_SECRET", ""), "HMAC secret (defaults to AUTH_JWT_SECRET)")
	cmd.Flags().StringVar(&role, "role", "client", "Role claim: client, admin or backoffice")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("AUTH_ISSUER", ""), "Issuer claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func mintToken(secret, subject, role, email, issuer string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if email != "" {
		claims["email"] = email
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
