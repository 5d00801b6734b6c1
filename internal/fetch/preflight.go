package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

// preflight probes the target URL over plain HTTP before a browser is
// launched, so an unreachable or broken page fails fast instead of after a
// full engine startup. Any failure here is a navigation failure and is never
// retried.
func (f *Fetcher) preflight(ctx context.Context, targetURL string, timeout time.Duration) error {
	c := colly.NewCollector(
		colly.UserAgent(f.config.UserAgent),
		colly.MaxDepth(1),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")

		log.Debug().
			Str("url", r.URL.String()).
			Msg("Preflight probe sending request")
	})

	var statusCode int
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
	})

	var probeErr error
	c.OnError(func(r *colly.Response, err error) {
		probeErr = err
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		if err := c.Visit(targetURL); err != nil {
			done <- err
			return
		}
		c.Wait()
		done <- nil
	}()

	var visitErr error
	select {
	case visitErr = <-done:
	case <-ctx.Done():
		return &NavigationError{URL: targetURL, Err: ctx.Err()}
	}

	if probeErr != nil {
		visitErr = probeErr
	}
	if visitErr != nil {
		return &NavigationError{URL: targetURL, Err: visitErr}
	}
	if statusCode < 200 || statusCode >= 300 {
		return &NavigationError{URL: targetURL, Err: fmt.Errorf("non-success status code: %d", statusCode)}
	}

	log.Debug().
		Str("url", targetURL).
		Int("status", statusCode).
		Msg("Preflight probe succeeded")

	return nil
}
