// Command paywatch-token issues API tokens accepted by paywatch.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/rookgm/paywatch/internal/models"
	"github.com/rookgm/paywatch/internal/service"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		log.Fatalf("Error issuing token: %v", err)
	}
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	fs := flag.NewFlagSet("paywatch-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	keyHex := fs.String("k", getenv("AUTH_TOKEN_KEY"), "hex encoded token signing key")
	userID := fs.Int64("user", 0, "user id")
	username := fs.String("name", "", "username")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("user id must be positive")
	}

	key, err := hex.DecodeString(*keyHex)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	if len(key) == 0 {
		return errors.New("token key is empty")
	}

	token, err := service.NewTokenService(key, *ttl).CreateToken(models.TokenPayload{
		UserID:   *userID,
		Username: *username,
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
