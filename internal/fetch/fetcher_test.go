package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession implements session for controller tests without a browser.
type fakeSession struct {
	navErr      error
	findErr     error
	downloadErr error
	content     string
	closed      int
}

func (s *fakeSession) Navigate(targetURL string, timeout time.Duration) error {
	return s.navErr
}

func (s *fakeSession) FindExportControl(selectors []string, perSelectorTimeout time.Duration) (string, error) {
	if s.findErr != nil {
		return "", s.findErr
	}
	return selectors[0], nil
}

func (s *fakeSession) TriggerDownload(selector, dir string, timeout time.Duration) (string, error) {
	if s.downloadErr != nil {
		return "", s.downloadErr
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "priority-bills.csv")
	if err := os.WriteFile(path, []byte(s.content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

// testFetcher returns a fetcher whose sessions come from the factory, with
// preflight disabled and no settle delay.
func testFetcher(t *testing.T, factory sessionFactory) *Fetcher {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Preflight = false
	cfg.SettleDelay = 0
	cfg.DownloadDir = filepath.Join(t.TempDir(), "downloads")

	f := New(cfg, "test")
	f.newSession = factory
	return f
}

func testRequest(t *testing.T, verify bool) *Request {
	t.Helper()

	return &Request{
		URL:           "https://example.com/spreadsheet/external/abc/",
		Engine:        EngineChromium,
		Timeout:       30 * time.Second,
		Headless:      true,
		VerifyContent: verify,
		OutputPath:    filepath.Join(t.TempDir(), "out.csv"),
	}
}

func TestDownloadSuccess(t *testing.T) {
	sess := &fakeSession{content: "name,status\nLD 1,Active\n"}
	f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
		return sess, nil
	})

	req := testRequest(t, true)
	result, err := f.Download(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, req.OutputPath, result.Path)
	assert.Equal(t, 1, result.DataRows)
	assert.False(t, result.Retried)
	assert.Equal(t, 1, sess.closed, "session should be closed exactly once")

	content, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "name,status\nLD 1,Active\n", string(content))
}

func TestDownloadVerifyFailureRetriesHeadful(t *testing.T) {
	// Headless export yields a header-only file, the visible retry yields 50
	// data rows.
	var sessions []*fakeSession
	f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
		sess := &fakeSession{content: "name,status\n"}
		if !headless {
			var b strings.Builder
			b.WriteString("name,status\n")
			for i := 0; i < 50; i++ {
				fmt.Fprintf(&b, "LD %d,Active\n", i+1)
			}
			sess.content = b.String()
		}
		sessions = append(sessions, sess)
		return sess, nil
	})

	result, err := f.Download(context.Background(), testRequest(t, true))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.Retried)
	assert.Equal(t, 50, result.DataRows)
	require.Len(t, sessions, 2, "expected exactly one retry")
	for i, sess := range sessions {
		assert.Equal(t, 1, sess.closed, "session %d should be closed exactly once", i)
	}
}

func TestDownloadVerifyFailureTwiceSurfacesError(t *testing.T) {
	var sessions []*fakeSession
	f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
		sess := &fakeSession{content: "name,status\n"}
		sessions = append(sessions, sess)
		return sess, nil
	})

	result, err := f.Download(context.Background(), testRequest(t, true))
	require.Error(t, err)

	var verr *ContentVerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, verr.DataRows)
	assert.False(t, result.Success)
	assert.True(t, result.Retried)
	assert.Len(t, sessions, 2, "only one retry is permitted")
}

func TestDownloadVerifyDisabledNeverRetries(t *testing.T) {
	var sessions []*fakeSession
	f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
		sess := &fakeSession{content: "name,status\n"}
		sessions = append(sessions, sess)
		return sess, nil
	})

	result, err := f.Download(context.Background(), testRequest(t, false))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.Retried)
	assert.Zero(t, result.DataRows)
	assert.Len(t, sessions, 1)
}

func TestDownloadHeadfulVerifyFailureDoesNotRetry(t *testing.T) {
	var sessions []*fakeSession
	f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
		sess := &fakeSession{content: "name,status\n"}
		sessions = append(sessions, sess)
		return sess, nil
	})

	req := testRequest(t, true)
	req.Headless = false

	_, err := f.Download(context.Background(), req)
	require.Error(t, err)

	var verr *ContentVerificationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, sessions, 1, "headful runs have no mode left to escalate to")
}

func TestDownloadStageErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		session *fakeSession
		check   func(t *testing.T, err error)
	}{
		{
			name:    "navigation failure",
			session: &fakeSession{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")},
			check: func(t *testing.T, err error) {
				var nerr *NavigationError
				assert.ErrorAs(t, err, &nerr)
			},
		},
		{
			name:    "export control missing",
			session: &fakeSession{findErr: errors.New("no selector matched")},
			check: func(t *testing.T, err error) {
				var cerr *ExportControlNotFoundError
				assert.ErrorAs(t, err, &cerr)
			},
		},
		{
			name:    "transfer timeout",
			session: &fakeSession{downloadErr: errors.New("timeout 30000ms exceeded")},
			check: func(t *testing.T, err error) {
				var terr *TransferTimeoutError
				assert.ErrorAs(t, err, &terr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
				attempts++
				return tt.session, nil
			})

			result, err := f.Download(context.Background(), testRequest(t, true))
			require.Error(t, err)
			tt.check(t, err)

			assert.False(t, result.Success)
			assert.NotEmpty(t, result.Message)
			assert.Equal(t, 1, attempts, "stage failures must not be retried")
			assert.Equal(t, 1, tt.session.closed, "session should be closed exactly once")
		})
	}
}

func TestDownloadSessionLaunchFailure(t *testing.T) {
	f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
		return nil, errors.New("executable not found")
	})

	result, err := f.Download(context.Background(), testRequest(t, false))
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, err.Error(), "failed to open chromium session")
}

func TestDownloadRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(req *Request)
		wantErr string
	}{
		{
			name:    "malformed URL",
			mutate:  func(req *Request) { req.URL = "not-a-valid-url" },
			wantErr: "invalid URL format",
		},
		{
			name:    "unknown engine",
			mutate:  func(req *Request) { req.Engine = "netscape" },
			wantErr: "unknown browser engine",
		},
		{
			name:    "zero timeout",
			mutate:  func(req *Request) { req.Timeout = 0 },
			wantErr: "timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launched := false
			f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
				launched = true
				return &fakeSession{}, nil
			})

			req := testRequest(t, false)
			tt.mutate(req)

			_, err := f.Download(context.Background(), req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.False(t, launched, "invalid requests must not open a session")
		})
	}
}

func TestDownloadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := testFetcher(t, func(cfg *Config, engine Engine, headless bool) (session, error) {
		return &fakeSession{}, nil
	})

	_, err := f.Download(ctx, testRequest(t, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
