package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/feedlotops/weighbot/internal/app"
	"github.com/feedlotops/weighbot/internal/messaging"
	"github.com/feedlotops/weighbot/internal/twiliowhatsapp"
	"github.com/feedlotops/weighbot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for weighbot state data
	DefaultStateDir = "/var/lib/weighbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "weighbot.db"
	// DefaultBlobDirName is the default directory name for archived photos
	DefaultBlobDirName = "photos"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build the chat transport
	service, err := buildMessagingService(flags)
	if err != nil {
		slog.Error("Failed to initialize chat transport", "error", err)
		os.Exit(1)
	}

	// Start the service
	slog.Info("Bootstrapping weighbot with configured modules")
	if err := app.Run(service, buildAppOptions(flags)...); err != nil {
		slog.Error("weighbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("weighbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	WhatsAppDSN   string
	StateDir      string
	APIAddr       string
	ChannelJID    string
	ReaperCron    string
	ReaperMinutes string
	UseTwilio     bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	dbDSN         *string
	waDSN         *string
	apiAddr       *string
	channelJID    *string
	reaperCron    *string
	reaperMinutes *string
	useTwilio     *bool
}

// parseBoolEnv parses a boolean environment variable with a default value.
// Accepts: true/1/yes/on and false/0/no/off (case-insensitive). Invalid values return default.
func parseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("parseBoolEnv: invalid boolean value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:      os.Getenv("WEIGHBOT_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		ChannelJID:    os.Getenv("WEIGHBOT_CHANNEL_JID"),
		ReaperCron:    os.Getenv("WEIGHBOT_REAPER_CRON"),
		ReaperMinutes: os.Getenv("WEIGHBOT_SESSION_TIMEOUT_MINUTES"),
		UseTwilio:     parseBoolEnv("WEIGHBOT_USE_TWILIO", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No WEIGHBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	// The whatsmeow session store defaults to the same database
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"WEIGHBOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"WEIGHBOT_CHANNEL_JID_SET", config.ChannelJID != "",
		"WEIGHBOT_USE_TWILIO", config.UseTwilio)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:      flag.String("qr-output", "", "path to write login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for weighbot data (overrides $WEIGHBOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the record store (overrides $DATABASE_URL)"),
		waDSN:         flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "HTTP server address (overrides $API_ADDR)"),
		channelJID:    flag.String("channel-jid", config.ChannelJID, "supervising channel JID for record notifications (overrides $WEIGHBOT_CHANNEL_JID)"),
		reaperCron:    flag.String("reaper-cron", config.ReaperCron, "cron schedule for the idle session sweep (overrides $WEIGHBOT_REAPER_CRON)"),
		reaperMinutes: flag.String("session-timeout", config.ReaperMinutes, "session idle timeout in minutes (overrides $WEIGHBOT_SESSION_TIMEOUT_MINUTES)"),
		useTwilio:     flag.Bool("use-twilio", config.UseTwilio, "use the Twilio transport instead of Whatsmeow (overrides $WEIGHBOT_USE_TWILIO)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"channelJID_set", *flags.channelJID != "",
		"useTwilio", *flags.useTwilio)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildMessagingService constructs the chat transport. Twilio needs its
// credentials in the environment; Whatsmeow needs a session database and,
// on first run, an interactive QR login.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	if *flags.useTwilio {
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	}

	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.waDSN)}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, err
	}
	return messaging.NewWhatsAppService(client), nil
}

// buildAppOptions constructs application configuration options
func buildAppOptions(flags Flags) []app.Option {
	opts := []app.Option{
		app.WithDSN(*flags.dbDSN),
		app.WithBlobDir(filepath.Join(*flags.stateDir, DefaultBlobDirName)),
	}
	if *flags.apiAddr != "" {
		opts = append(opts, app.WithAddr(*flags.apiAddr))
	}
	if *flags.channelJID != "" {
		opts = append(opts, app.WithChannelJID(*flags.channelJID))
	}
	if *flags.reaperCron != "" {
		opts = append(opts, app.WithReaperCron(*flags.reaperCron))
	}
	if *flags.reaperMinutes != "" {
		if minutes, err := time.ParseDuration(*flags.reaperMinutes + "m"); err == nil {
			opts = append(opts, app.WithReaperTimeout(minutes))
		} else {
			slog.Warn("Invalid session timeout, using default", "value", *flags.reaperMinutes)
		}
	}
	return opts
}
