// Command issue-token mints a bearer token for local testing of the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/auth"
	"github.com/xenking/atelier/internal/jwtauth"
)

func main() {
	var (
		secret string
		issuer string
		id     auth.Identity
		role   string
		ttl    time.Duration
	)

	flag.StringVar(&secret, "secret", "", "HMAC secret (or ATELIER_AUTH_JWT_SECRET env)")
	flag.StringVar(&issuer, "issuer", os.Getenv("ATELIER_AUTH_ISSUER"), "token issuer")
	flag.StringVar(&id.ID, "sub", "", "user ID")
	flag.StringVar(&id.Email, "email", "", "user email")
	flag.StringVar(&role, "role", string(auth.RoleCustomer), "customer or admin")
	flag.BoolVar(&id.EmailVerified, "verified", true, "mark the email as verified")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if secret == "" {
		secret = os.Getenv("ATELIER_AUTH_JWT_SECRET")
	}
	if secret == "" {
		lg.Fatal("Secret is required: set --secret or ATELIER_AUTH_JWT_SECRET")
	}
	if id.ID == "" {
		lg.Fatal("User ID is required: set --sub")
	}
	id.Role = auth.Role(role)
	if id.Role != auth.RoleCustomer && id.Role != auth.RoleAdmin {
		lg.Fatal("Unknown role", zap.String("role", role))
	}

	token, err := jwtauth.NewIssuer([]byte(secret), issuer, ttl).Issue(id)
	if err != nil {
		lg.Fatal("Issue token", zap.Error(err))
	}
	fmt.Println(token)
}
