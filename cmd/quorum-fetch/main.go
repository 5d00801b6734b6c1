package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/scme-tracker/quorum-fetch/internal/archive"
	"github.com/scme-tracker/quorum-fetch/internal/fetch"
	"github.com/scme-tracker/quorum-fetch/internal/notify"
)

// Config holds the application configuration loaded from environment variables
type Config struct {
	URL          string // Default spreadsheet URL when no positional argument is given
	Browser      string // Default browser engine
	Timeout      int    // Default download timeout in seconds
	ArchiveDir   string // Directory for dated archive copies
	Env          string // Environment (development/production)
	SentryDSN    string // Sentry DSN for error tracking
	LogLevel     string // Log level (debug, info, warn, error)
	SlackToken   string // Slack bot token for outcome notifications
	SlackChannel string // Slack channel ID for outcome notifications
}

func main() {
	// Load .env files - .env.local takes priority for development
	godotenv.Load(".env.local", ".env")

	config := &Config{
		URL:          os.Getenv("QUORUM_URL"),
		Browser:      getEnvWithDefault("DEFAULT_BROWSER", "chromium"),
		Timeout:      getEnvInt("DEFAULT_TIMEOUT", 60),
		ArchiveDir:   getEnvWithDefault("ARCHIVE_DIR", "archive"),
		Env:          getEnvWithDefault("APP_ENV", "development"),
		SentryDSN:    os.Getenv("SENTRY_DSN"),
		LogLevel:     getEnvWithDefault("LOG_LEVEL", "info"),
		SlackToken:   os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel: os.Getenv("SLACK_CHANNEL_ID"),
	}

	browserName := flag.String("browser", config.Browser, "Browser engine to use (chromium, firefox or webkit)")
	timeoutSecs := flag.Int("timeout", config.Timeout, "Timeout in seconds to wait for navigation and download")
	noHeadless := flag.Bool("no-headless", false, "Run the browser with a visible window")
	verifyContent := flag.Bool("verify-content", false, "Verify the file has data rows and retry headful if needed")
	outputPath := flag.String("output", "", "Destination path for the CSV (default: suggested filename in current directory)")
	archiveDir := flag.String("archive-dir", config.ArchiveDir, "Directory for dated archive copies")
	flag.Parse()

	setupLogging(config)

	targetURL := config.URL
	if flag.NArg() > 0 {
		targetURL = flag.Arg(0)
	}
	if targetURL == "" {
		log.Fatal().Msg("No URL provided: pass one as an argument or set QUORUM_URL")
	}

	// Initialise Sentry for error tracking
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              config.SentryDSN,
			Environment:      config.Env,
			AttachStacktrace: true,
			Debug:            config.Env == "development",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", config.Env).Msg("Sentry initialised successfully")
		}
	} else {
		log.Warn().Msg("Sentry DSN not configured, error tracking disabled")
	}

	engine, err := fetch.ParseEngine(*browserName)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid browser engine")
	}

	runID := uuid.New().String()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", runID)
	})

	log.Info().
		Str("run_id", runID).
		Str("url", targetURL).
		Str("engine", string(engine)).
		Int("timeout_seconds", *timeoutSecs).
		Bool("headless", !*noHeadless).
		Bool("verify_content", *verifyContent).
		Msg("Starting CSV download")

	req := &fetch.Request{
		URL:           targetURL,
		Engine:        engine,
		Timeout:       time.Duration(*timeoutSecs) * time.Second,
		Headless:      !*noHeadless,
		VerifyContent: *verifyContent,
		OutputPath:    *outputPath,
	}

	ctx := context.Background()
	fetcher := fetch.New(fetch.DefaultConfig(), runID)

	start := time.Now()
	result, err := fetcher.Download(ctx, req)

	if err == nil {
		archivePath, archiveErr := archive.New(*archiveDir).Archive(ctx, result.Path, time.Now())
		if archiveErr != nil {
			err = fmt.Errorf("download succeeded but archiving failed: %w", archiveErr)
		} else {
			log.Info().Str("archive", archivePath).Msg("Archive copy written")
		}
	}

	summary := notify.RunSummary{
		URL:      targetURL,
		Success:  err == nil,
		Duration: time.Since(start),
		Err:      err,
	}
	if result != nil {
		summary.Path = result.Path
		summary.DataRows = result.DataRows
		summary.Retried = result.Retried
	}

	if config.SlackToken != "" && config.SlackChannel != "" {
		notifier := notify.NewSlackNotifier(config.SlackToken, config.SlackChannel)
		if nerr := notifier.Notify(ctx, summary); nerr != nil {
			log.Warn().Err(nerr).Str("channel", notifier.Name()).Msg("Failed to deliver run notification")
		}
	}

	if err != nil {
		sentry.CaptureException(err)
		log.Error().
			Err(err).
			Str("run_id", runID).
			Str("url", targetURL).
			Dur("duration", time.Since(start)).
			Msg("CSV download failed")
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	log.Info().
		Str("run_id", runID).
		Str("path", result.Path).
		Int("data_rows", result.DataRows).
		Bool("retried", result.Retried).
		Dur("duration", time.Since(start)).
		Msg("CSV download completed successfully")
	sentry.Flush(2 * time.Second)
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value if not set or invalid
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
		return defaultValue
	}

	return result
}

// setupLogging configures the logging system
func setupLogging(config *Config) {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use console writer in development
	if config.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		// In production, JSON logs play well with CI log collection
		log.Logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("service", "quorum-fetch").
			Logger()
	}
}
