package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"kalelend/cmd/internal/passphrase"
	"kalelend/crypto"
	"kalelend/gateway/middleware"
)

const (
	keygenCommand  = "keygen"
	addressCommand = "address"
	tokenCommand   = "token"

	defaultPassEnv   = "KALELEND_KEYSTORE_PASS"
	defaultSecretEnv = "KALELEND_AUTH_SECRET"
	defaultKeystore  = "kalelend.keystore"
)

// secretSource resolves keystore passphrases. Tests replace it.
var secretSource = func(envVar string) func() (string, error) {
	return passphrase.NewSource(envVar).Get
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, getenv func(string) string) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("missing command")
	}
	switch args[0] {
	case keygenCommand:
		return runKeygen(args[1:], out)
	case addressCommand:
		return runAddress(args[1:], out)
	case tokenCommand:
		return runToken(args[1:], out, getenv)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: kalelendctl <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  keygen   generate a key and write it to an encrypted keystore")
	fmt.Fprintln(out, "  address  print the address of a keystore or normalise an address")
	fmt.Fprintln(out, "  token    mint an API token for an address")
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	fs.SetOutput(out)
	keystorePath := fs.String("keystore", defaultKeystore, "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*keystorePath); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists; pass -force to overwrite", *keystorePath)
	}
	pass, err := secretSource(*passEnv)()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintf(out, "Keystore written to %s\n", *keystorePath)
	fmt.Fprintf(out, "Address: %s\n", key.PubKey().Address())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCommand, flag.ContinueOnError)
	fs.SetOutput(out)
	keystorePath := fs.String("keystore", "", "Keystore to read the address from")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := resolveAddress(*keystorePath, *passEnv, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr.String())
	return nil
}

func runToken(args []string, out io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "", "Address the token authenticates")
	keystorePath := fs.String("keystore", "", "Keystore whose address becomes the subject")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable containing the HMAC signing secret")
	issuer := fs.String("issuer", "", "Token issuer")
	audience := fs.String("audience", "", "Token audience")
	scopes := fs.String("scopes", "", "Comma separated scopes")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := resolveAddress(*keystorePath, *passEnv, *subject)
	if err != nil {
		return err
	}
	secret := getenv(*secretEnv)
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%s must hold the signing secret", *secretEnv)
	}
	token, err := middleware.IssueToken(secret, middleware.TokenRequest{
		Subject:  addr,
		Issuer:   *issuer,
		Audience: *audience,
		Scopes:   splitList(*scopes),
		TTL:      *ttl,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func resolveAddress(keystorePath, passEnv, raw string) (crypto.Address, error) {
	if keystorePath != "" {
		pass, err := secretSource(passEnv)()
		if err != nil {
			return crypto.Address{}, err
		}
		key, err := crypto.LoadFromKeystore(keystorePath, pass)
		if err != nil {
			return crypto.Address{}, fmt.Errorf("open keystore: %w", err)
		}
		return key.PubKey().Address(), nil
	}
	if strings.TrimSpace(raw) == "" {
		return crypto.Address{}, errors.New("an address or -keystore is required")
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("decode address: %w", err)
	}
	return addr, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
