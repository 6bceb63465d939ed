package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/hrcore-backend/pkg/auth"
	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
)

const serviceName = "ops-token"

// ops-token prints a bearer token for the /api/v1 routes.
func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	_ = godotenv.Load()

	subject := flag.String("subject", "", "token subject, usually the operator email")
	role := flag.String("role", string(enums.MemberRoleViewer), "admin|operator|viewer")
	ttl := flag.Int("ttl", 0, "lifetime in minutes; defaults to HRCORE_JWT_EXPIRATION_MINUTES")
	flag.Parse()

	token, err := mint(*subject, *role, *ttl)
	if err != nil {
		logg.Error(context.Background(), "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func mint(subject, rawRole string, ttl int) (string, error) {
	cfg, err := config.LoadJWT()
	if err != nil {
		return "", err
	}
	if ttl > 0 {
		cfg.ExpirationMinutes = ttl
	}
	role, err := enums.ParseMemberRole(rawRole)
	if err != nil {
		return "", err
	}
	return auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{Subject: subject, Role: role})
}
