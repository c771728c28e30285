// Command devtoken prints an access token for local testing against a
// server started with the same JWT_SECRET.
//
//	go run ./cmd/devtoken -user 42 -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/cinema-booking/internal/auth"
)

func main() {
	_ = godotenv.Load()

	userID := flag.Uint64("user", 1, "user id placed in the sub claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to JWT_SECRET)")
	flag.Parse()

	tok, err := auth.NewAccessToken(*secret, *userID, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
