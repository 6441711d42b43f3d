// Command devtoken mints access tokens for local development. Tokens are
// normally issued by the identity provider in front of the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"classbook/internal/auth"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	userID := flag.Int("user", 1, "user id")
	memberID := flag.Int("member", 0, "member id, 0 for staff without a member record")
	role := flag.String("role", auth.RoleMember, "member, staff or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	token, err := auth.GenerateAccessToken(*userID, *memberID, *role, os.Getenv("JWT_SECRET"), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
