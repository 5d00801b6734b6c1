package fetch

import (
	"fmt"
	"time"
)

// NavigationError reports that the page could not be reached or failed to load.
// Not retried: a second attempt against an unreachable URL has no better odds.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExportControlNotFoundError reports that none of the candidate selectors
// matched a visible export control. Usually means the page structure changed
// upstream.
type ExportControlNotFoundError struct {
	URL       string
	Selectors []string
	Timeout   time.Duration
}

func (e *ExportControlNotFoundError) Error() string {
	return fmt.Sprintf("export control not found on %s after trying %d selectors (%s per selector)",
		e.URL, len(e.Selectors), e.Timeout)
}

// TransferTimeoutError reports that the export was triggered but no file
// arrived within the configured timeout.
type TransferTimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TransferTimeoutError) Error() string {
	return fmt.Sprintf("download from %s did not complete within %s: %v", e.URL, e.Timeout, e.Err)
}

func (e *TransferTimeoutError) Unwrap() error { return e.Err }

// ContentVerificationError reports that the downloaded file exists but is not
// structurally valid CSV with at least one data row.
type ContentVerificationError struct {
	Path     string
	DataRows int
	Err      error
}

func (e *ContentVerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("downloaded file %s failed verification: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("downloaded file %s has %d data rows, expected at least 1", e.Path, e.DataRows)
}

func (e *ContentVerificationError) Unwrap() error { return e.Err }
