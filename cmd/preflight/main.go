// cmd/preflight/main.go
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Checks the environment before starting a master or slave. Run with the
// role as the only argument: `preflight master` or `preflight slave`.
func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	role := "master"
	if len(os.Args) > 1 {
		role = os.Args[1]
	}
	if role != "master" && role != "slave" {
		fail("unknown role " + strconv.Quote(role) + "; use master or slave")
	}

	apiKey := strings.TrimSpace(os.Getenv("API_KEY"))
	if apiKey == "" {
		warn("API_KEY is empty — all endpoints run unauthenticated (dev only).")
	} else {
		ok("API_KEY present")
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 || n >= 65536 {
			fail("PORT=" + v + " is not a valid port")
		}
		ok("PORT=" + v)
	} else {
		warn("PORT empty; defaulting to 8080.")
	}

	for _, name := range []string{"CHECK_TIMEOUT", "RETRY_BACKOFF_MS", "SAVE_DEBOUNCE_MS"} {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err != nil || n < 0 {
				fail(name + "=" + v + " is not a non-negative millisecond count")
			}
		}
	}

	if role == "slave" {
		master := strings.TrimSpace(os.Getenv("MASTER_URL"))
		if master == "" {
			fail("MASTER_URL is empty (the slave has nowhere to report).")
		}
		if u, err := url.Parse(master); err != nil || u.Scheme == "" || u.Host == "" {
			fail("MASTER_URL=" + master + " is not an absolute URL")
		}
		ok("MASTER_URL=" + master)

		if seed := os.Getenv("SERVICES_FILE"); seed != "" {
			if _, err := os.Stat(seed); err != nil {
				fail("SERVICES_FILE=" + seed + " is not readable: " + err.Error())
			}
			ok("SERVICES_FILE=" + seed)
		}
	}

	if role == "master" {
		if v := os.Getenv("STATE_RETENTION_DAYS"); v != "" {
			if n, err := strconv.Atoi(v); err != nil || n < 30 {
				warn("STATE_RETENTION_DAYS=" + v + " is below the 30-day floor; the default (90) will be used.")
			}
		}
		if os.Getenv("SLACK_WEBHOOK") == "" {
			warn("SLACK_WEBHOOK empty — transitions go to the log only.")
		}
	}

	ok("preflight passed")
}
