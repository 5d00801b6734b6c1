package fetch

import (
	"fmt"
	"time"
)

// Engine identifies which browser engine drives the export.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// ParseEngine validates a browser engine name from configuration or flags.
func ParseEngine(s string) (Engine, error) {
	switch Engine(s) {
	case EngineChromium, EngineFirefox, EngineWebKit:
		return Engine(s), nil
	default:
		return "", fmt.Errorf("unknown browser engine: %q (expected chromium, firefox or webkit)", s)
	}
}

// Request describes a single download run. Immutable for the duration of the run.
type Request struct {
	URL           string        // Spreadsheet page hosting the export control
	Engine        Engine        // Browser engine to drive
	Timeout       time.Duration // Bound on navigation and transfer waits
	Headless      bool          // Run the browser without a visible window
	VerifyContent bool          // Check the downloaded file parses as CSV with data rows
	OutputPath    string        // Destination for the CSV; empty keeps the suggested filename in the working directory
}

// Result represents the outcome of a download run
type Result struct {
	Path     string `json:"path"`
	Success  bool   `json:"success"`
	DataRows int    `json:"data_rows,omitempty"`
	Retried  bool   `json:"retried,omitempty"`
	Message  string `json:"message,omitempty"`
}
