// Command devtoken issues a signed bearer token for local development against
// IDENTITY_PROVIDER=jwt. It reads JWT_SECRET from the same environment as the server.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"eventregistration/config"
	"eventregistration/internal/adapters/auth"
)

func main() {
	userID := flag.String("user", "", "user id (token subject)")
	email := flag.String("email", "", "user email")
	roles := flag.String("roles", "", "comma separated role codes")
	expiry := flag.Duration("expiry", time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" || *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if cfg.Environment == "production" {
		fmt.Fprintln(os.Stderr, "devtoken refuses to run with GO_ENV=production")
		os.Exit(1)
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}
	token, err := auth.NewJWTIssuer(cfg.JWTSecret).Issue(*userID, *email, roleList, *expiry)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
