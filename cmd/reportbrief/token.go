package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/reportbrief/reportbrief/internal/auth"
	"github.com/reportbrief/reportbrief/internal/config"
	"github.com/reportbrief/reportbrief/internal/vault"
)

// cmdToken prints a bearer token for a user, signed with the configured
// secret. It is meant for local development; production tokens come from
// the identity provider.
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: reportbrief token [--ttl 24h] <user-id>")
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	secret, err := vault.New().ResolveKeyRef(cfg.Auth.JWTSecretRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving signing secret: %v\n", err)
		fmt.Fprintln(os.Stderr, "run 'reportbrief keys generate-jwt' to create one")
		os.Exit(1)
	}

	v, err := auth.NewVerifier(auth.Options{
		Secret:   []byte(secret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	token, err := v.Issue(fs.Arg(0), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error signing token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
