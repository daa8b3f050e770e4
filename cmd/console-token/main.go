package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/pkg/serverutils"

	"github.com/fatih/color"
)

// Prints a bearer token for the admin console endpoints.
func main() {
	adminID := flag.Int64("admin", 0, "chat id of a configured admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	if cfg.Access.ConsoleSecret == "" {
		color.Red("ADMIN_JWT_SECRET is not set; the console is disabled")
		os.Exit(1)
	}

	listed := false
	for _, id := range cfg.Access.AdminIDs {
		listed = listed || id == *adminID
	}
	if !listed {
		color.Red("%d is not listed in ADMIN_USER_IDS", *adminID)
		os.Exit(1)
	}

	token, err := serverutils.IssueAdminToken(cfg.Access.ConsoleSecret, *adminID, *ttl)
	if err != nil {
		color.Red("Failed to sign token: %v", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
