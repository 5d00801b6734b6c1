package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// session represents one exclusively-owned browser page for the duration of a
// run. Implementations must be safe to Close after any partial sequence of
// calls.
type session interface {
	// Navigate loads the target URL and waits for the network to go idle.
	Navigate(targetURL string, timeout time.Duration) error
	// FindExportControl waits for the first visible match from the candidate
	// selectors and returns the selector that matched.
	FindExportControl(selectors []string, perSelectorTimeout time.Duration) (string, error)
	// TriggerDownload clicks the export control and waits for the resulting
	// file transfer, saving it under dir. Returns the saved path.
	TriggerDownload(selector, dir string, timeout time.Duration) (string, error)
	Close() error
}

// sessionFactory opens a browser session for the given engine and visibility.
type sessionFactory func(cfg *Config, engine Engine, headless bool) (session, error)

// Fetcher drives a browser session through the export flow described by a Request.
type Fetcher struct {
	config     *Config
	id         string
	newSession sessionFactory
}

// New creates a new Fetcher instance with the given configuration and optional ID.
// If config is nil, default configuration is used.
func New(config *Config, id ...string) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}

	fetcherID := ""
	if len(id) > 0 {
		fetcherID = id[0]
	}

	return &Fetcher{
		config:     config,
		id:         fetcherID,
		newSession: newPlaywrightSession,
	}
}

// Config returns the Fetcher's configuration.
func (f *Fetcher) Config() *Config {
	return f.config
}

// validateRequest checks the request parameters and URL format before any
// browser work starts.
func validateRequest(ctx context.Context, req *Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return &NavigationError{URL: req.URL, Err: err}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return &NavigationError{URL: req.URL, Err: fmt.Errorf("invalid URL format: %s", req.URL)}
	}

	if _, err := ParseEngine(string(req.Engine)); err != nil {
		return err
	}

	if req.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", req.Timeout)
	}

	return nil
}

// Download runs the export sequence for the request and returns the result.
// Only a content-verification failure of a headless attempt is retried, once,
// with a visible browser; navigation and export-control failures surface
// immediately.
func (f *Fetcher) Download(ctx context.Context, req *Request) (*Result, error) {
	if err := validateRequest(ctx, req); err != nil {
		return &Result{Success: false, Message: err.Error()}, err
	}

	if f.config.Preflight {
		if err := f.preflight(ctx, req.URL, req.Timeout); err != nil {
			log.Error().
				Err(err).
				Str("url", req.URL).
				Msg("Preflight probe failed, not launching browser")
			return &Result{Success: false, Message: err.Error()}, err
		}
	}

	res, err := f.attempt(ctx, req, req.Headless)
	if err == nil {
		return res, nil
	}

	// Guarded retry: exactly one headful attempt, and only when the headless
	// run produced a file that failed verification. Some export flows render
	// partial content under headless automation.
	var verr *ContentVerificationError
	if req.Headless && req.VerifyContent && errors.As(err, &verr) {
		log.Warn().
			Str("url", req.URL).
			Int("data_rows", verr.DataRows).
			Msg("Headless download failed verification, retrying with visible browser")

		res, err = f.attempt(ctx, req, false)
		if err != nil {
			return &Result{Success: false, Retried: true, Message: err.Error()}, err
		}
		res.Retried = true
		return res, nil
	}

	return &Result{Success: false, Message: err.Error()}, err
}

// attempt performs one full pass: session, navigate, locate control, download,
// copy to destination, verify. The session is always closed before returning.
func (f *Fetcher) attempt(ctx context.Context, req *Request, headless bool) (*Result, error) {
	start := time.Now()

	sess, err := f.newSession(f.config, req.Engine, headless)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s session: %w", req.Engine, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close browser session")
		}
	}()

	log.Debug().
		Str("url", req.URL).
		Str("engine", string(req.Engine)).
		Bool("headless", headless).
		Str("fetcher_id", f.id).
		Msg("Browser session opened")

	if err := sess.Navigate(req.URL, req.Timeout); err != nil {
		return nil, &NavigationError{URL: req.URL, Err: err}
	}

	// Give the sheet's client-side rendering a moment to populate before
	// hunting for the control.
	if f.config.SettleDelay > 0 {
		select {
		case <-time.After(f.config.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	selector, err := sess.FindExportControl(f.config.ExportSelectors, f.config.SelectorTimeout)
	if err != nil {
		return nil, &ExportControlNotFoundError{
			URL:       req.URL,
			Selectors: f.config.ExportSelectors,
			Timeout:   f.config.SelectorTimeout,
		}
	}

	log.Debug().
		Str("url", req.URL).
		Str("selector", selector).
		Msg("Export control located")

	savedPath, err := sess.TriggerDownload(selector, f.config.DownloadDir, req.Timeout)
	if err != nil {
		return nil, &TransferTimeoutError{URL: req.URL, Timeout: req.Timeout, Err: err}
	}

	destPath := req.OutputPath
	if destPath == "" {
		destPath = filepath.Base(savedPath)
	}

	if err := copyFile(savedPath, destPath); err != nil {
		return nil, fmt.Errorf("failed to copy download to %s: %w", destPath, err)
	}

	res := &Result{Path: destPath, Success: true}

	if req.VerifyContent {
		rows, err := VerifyCSV(destPath)
		if err != nil {
			return nil, &ContentVerificationError{Path: destPath, Err: err}
		}
		if rows < 1 {
			return nil, &ContentVerificationError{Path: destPath, DataRows: rows}
		}
		res.DataRows = rows
	}

	log.Info().
		Str("url", req.URL).
		Str("path", destPath).
		Int("data_rows", res.DataRows).
		Bool("headless", headless).
		Dur("duration", time.Since(start)).
		Msg("CSV downloaded")

	return res, nil
}

// copyFile copies src to dst with a full read and write rather than a rename,
// so the destination works across filesystems and restrictive download dirs.
func copyFile(src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(dst); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return os.WriteFile(dst, content, 0o644)
}
