package fetch

import (
	"time"
)

// Config holds the configuration for a fetcher instance
type Config struct {
	DefaultTimeout  time.Duration // Default timeout for navigation and download waits
	SelectorTimeout time.Duration // Per-selector wait when locating the export control
	SettleDelay     time.Duration // Extra wait after navigation for the sheet data to render
	UserAgent       string        // User agent string for the browser context
	ViewportWidth   int           // Browser viewport width
	ViewportHeight  int           // Browser viewport height
	ExportSelectors []string      // Ordered candidate selectors for the export control
	DownloadDir     string        // Directory where the browser saves transfers
	Preflight       bool          // Probe the URL over HTTP before launching a browser
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout:  60 * time.Second,
		SelectorTimeout: 5 * time.Second,
		SettleDelay:     2 * time.Second,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.127 Safari/537.36",
		ViewportWidth:   1280,
		ViewportHeight:  800,
		ExportSelectors: []string{
			"#download-sheet",
			"button#download-sheet",
			`button:has-text("Download")`,
			`button:has-text("Export")`,
			`a:has-text("Download")`,
			`xpath=//*[@id="download-sheet"]`,
		},
		DownloadDir: "downloads",
		Preflight:   true,
	}
}
