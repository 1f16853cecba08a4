// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimecore/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load()
	if err != nil {
		fail("config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, "✖", e)
		}
		fail("config is invalid")
	}
	ok("ADDR=" + cfg.Addr)

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; admin routes are open.")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; read routes are open.")
	}
	for _, k := range append(cfg.AdminAPIKeys, cfg.PublicAPIKeys...) {
		if strings.ContainsAny(k, " \t") {
			warn("an API key contains spaces; use comma-separated with no spaces, e.g. key1,key2")
			break
		}
	}

	if cfg.DatabaseURL != "" {
		ok("DATABASE_URL present (postgres)")
	} else {
		ok("SQLITE_PATH=" + cfg.SQLitePath)
	}
	if cfg.Redis.Addr == "" {
		warn("REDIS_ADDR empty; notification backoff and re-check claims stay in-process.")
	} else {
		ok("REDIS_ADDR=" + cfg.Redis.Addr)
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.Confirmation.Enabled {
		ok(fmt.Sprintf("failure confirmation: %d probes, %s apart", cfg.Confirmation.Threshold, cfg.Confirmation.Delay))
	} else {
		warn("failure confirmation disabled; a single failed probe opens an incident.")
	}
	ok(fmt.Sprintf("check floor %s (tier %q)", cfg.MinCheckInterval(), cfg.Checks.Tier))

	n := cfg.Notify
	if n.SMTPHost == "" {
		warn("SMTP_HOST empty; email channels are skipped.")
	}
	if n.TelegramToken == "" {
		warn("TELEGRAM_TOKEN empty; telegram channels are skipped.")
	}
	if n.SMSGatewayURL == "" {
		warn("SMS_GATEWAY_URL empty; sms channels are skipped.")
	}
	ok(fmt.Sprintf("%d monitors declared in config", len(cfg.Monitors)))

	ok("preflight passed")
}
