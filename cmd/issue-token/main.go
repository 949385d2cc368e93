// Command issue-token mints an access token for an operator, admin or card
// gateway, signed with JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/card-tracking/internal/middleware"
	"github.com/iliyamo/card-tracking/internal/utils"
)

func main() {
	subject := flag.String("sub", "", "token subject (user or gateway id)")
	role := flag.String("role", middleware.RoleDevice, "OPERATOR, DEVICE or ADMIN")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: JWT_SECRET=... issue-token -sub <id> [-role DEVICE] [-ttl 24h]")
		os.Exit(2)
	}
	r := strings.ToUpper(*role)
	switch r {
	case middleware.RoleOperator, middleware.RoleDevice, middleware.RoleAdmin:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(secret, *subject, r, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
