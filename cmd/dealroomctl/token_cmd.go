package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"dealroom/internal/config"
	"dealroom/internal/domain"
	"dealroom/internal/infra/auth"
)

// runToken mints a bearer token with the service's JWT settings, for
// operators and local testing.
func runToken(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "identity subject")
	org := fs.String("org", "", "organization id")
	roles := fs.StringArray("role", nil, "role claim, repeatable")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	envFile := fs.String("env-file", ".env", "dotenv file with JWT_SECRET")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *subject == "" {
		fmt.Fprintln(stderr, "token requires --subject")
		return 1
	}
	if *ttl <= 0 {
		fmt.Fprintln(stderr, "--ttl must be positive")
		return 1
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	signer, err := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.AdminRole)
	if err != nil {
		fmt.Fprintf(stderr, "init signer: %v\n", err)
		return 1
	}
	token, err := signer.Sign(domain.Identity{Subject: *subject, OrganizationID: *org}, *roles, *ttl)
	if err != nil {
		fmt.Fprintf(stderr, "sign token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
