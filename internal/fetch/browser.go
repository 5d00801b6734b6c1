package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"
)

// playwrightSession drives a real browser through Playwright. One session per
// run; Close tears down the browser and the driver.
type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

// newPlaywrightSession launches the requested engine and opens a page ready
// for downloads.
func newPlaywrightSession(cfg *Config, engine Engine, headless bool) (session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	var browserType playwright.BrowserType
	switch engine {
	case EngineFirefox:
		browserType = pw.Firefox
	case EngineWebKit:
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", engine, err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(true),
		UserAgent:       playwright.String(cfg.UserAgent),
		Viewport: &playwright.Size{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(float64(cfg.DefaultTimeout.Milliseconds()))

	return &playwrightSession{pw: pw, browser: browser, page: page}, nil
}

func (s *playwrightSession) Navigate(targetURL string, timeout time.Duration) error {
	_, err := s.page.Goto(targetURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (s *playwrightSession) FindExportControl(selectors []string, perSelectorTimeout time.Duration) (string, error) {
	for _, selector := range selectors {
		log.Debug().Str("selector", selector).Msg("Looking for export control")

		el, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(perSelectorTimeout.Milliseconds())),
		})
		if err == nil && el != nil {
			return selector, nil
		}
	}

	return "", fmt.Errorf("no selector matched a visible export control")
}

func (s *playwrightSession) TriggerDownload(selector, dir string, timeout time.Duration) (string, error) {
	el, err := s.page.QuerySelector(selector)
	if err != nil || el == nil {
		return "", fmt.Errorf("export control %q no longer present: %w", selector, err)
	}

	download, err := s.page.ExpectDownload(func() error {
		return el.Click()
	}, playwright.PageExpectDownloadOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	savePath := filepath.Join(dir, download.SuggestedFilename())
	if err := download.SaveAs(savePath); err != nil {
		return "", fmt.Errorf("failed to save download: %w", err)
	}

	return savePath, nil
}

func (s *playwrightSession) Close() error {
	var firstErr error
	if err := s.browser.Close(); err != nil {
		firstErr = err
	}
	if err := s.pw.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
