package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Host   string // bind host, e.g. "0.0.0.0"
	Port   int    // bind port
	APIKey string // shared bearer token; empty disables auth (dev)
	LogDir string // logs directory
	DataDir string // master: snapshot directory

	// Slave identity and master endpoint.
	MasterURL string
	SlaveID   string // generated when empty
	SlaveName string

	// Check execution tuning.
	MaxConcurrentChecks int
	CheckTimeout        time.Duration // default per-attempt deadline
	RetryAttempts       int
	RetryBackoff        time.Duration // fixed inter-retry delay

	// Protocol and persistence tuning.
	HeartbeatInterval time.Duration
	SaveDebounce      time.Duration
	RetentionDays     int

	SlackWebhook string // empty disables notifications
	ServicesFile string // slave: optional YAML seed list
}

func FromEnv() Config {
	host := os.Getenv("HOST")
	if host == "" {
		host = "0.0.0.0"
	}

	port := 8080
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < 65536 {
			port = n
		}
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	maxChecks := 10
	if v := os.Getenv("MAX_CONCURRENT_CHECKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxChecks = n
		}
	}

	checkTimeout := 10 * time.Second
	if v := os.Getenv("CHECK_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			checkTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	retryAttempts := 3
	if v := os.Getenv("RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			retryAttempts = n
		}
	}

	retryBackoff := 1000 * time.Millisecond
	if v := os.Getenv("RETRY_BACKOFF_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			retryBackoff = time.Duration(ms) * time.Millisecond
		}
	}

	heartbeat := 30 * time.Second
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			heartbeat = time.Duration(s) * time.Second
		}
	}

	debounce := 5 * time.Second
	if v := os.Getenv("SAVE_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			debounce = time.Duration(ms) * time.Millisecond
		}
	}

	// Floor at the 30d rolling window so retention never prunes data the
	// window computation still needs.
	retention := 90
	if v := os.Getenv("STATE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 30 {
			retention = n
		}
	}

	return Config{
		Host:                host,
		Port:                port,
		APIKey:              os.Getenv("API_KEY"),
		LogDir:              logDir,
		DataDir:             dataDir,
		MasterURL:           os.Getenv("MASTER_URL"),
		SlaveID:             os.Getenv("SLAVE_ID"),
		SlaveName:           os.Getenv("SLAVE_NAME"),
		MaxConcurrentChecks: maxChecks,
		CheckTimeout:        checkTimeout,
		RetryAttempts:       retryAttempts,
		RetryBackoff:        retryBackoff,
		HeartbeatInterval:   heartbeat,
		SaveDebounce:        debounce,
		RetentionDays:       retention,
		SlackWebhook:        os.Getenv("SLACK_WEBHOOK"),
		ServicesFile:        os.Getenv("SERVICES_FILE"),
	}
}

// Addr is the bind address for the local HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HeartbeatTimeout is the liveness cutoff: twice the heartbeat interval,
// tolerating one missed beat.
func (c Config) HeartbeatTimeout() time.Duration {
	return 2 * c.HeartbeatInterval
}
