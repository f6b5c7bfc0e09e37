package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/report-autofill/internal/config"
	"github.com/cuongbtq/report-autofill/internal/domain"
	"github.com/cuongbtq/report-autofill/internal/submitter"
)

func TestInitServices_EndToEnd(t *testing.T) {
	form := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, submitter.DefaultSuccessText)
	}))
	defer form.Close()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver: "sqlite3",
			Path:   filepath.Join(t.TempDir(), "reports.db"),
		},
		Engine: config.EngineConfig{BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		Form: config.FormConfig{
			URL:     form.URL + "/viewform",
			Entries: map[string]string{"student_name": "entry.1"},
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.ValidateEngineConfig())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services, err := InitServices(cfg, logger, nil)
	require.NoError(t, err)
	defer services.Close()

	ctx := context.Background()
	_, err = services.Profiles.Put(ctx, "ali", domain.Fields{"student_name": "Ali"}, "")
	require.NoError(t, err)

	result, err := services.Engine.SubmitBatch(ctx, []string{"ali"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	result, err = services.Engine.SubmitBatch(ctx, []string{"ali"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
}

func TestRetryPolicy(t *testing.T) {
	policy := RetryPolicy(&config.EngineConfig{
		MaxAttempts: 4,
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Second,
	})

	assert.Equal(t, 4, policy.MaxAttempts)
	assert.Equal(t, 8*time.Second, policy.Backoff(4))
	assert.Equal(t, 10*time.Second, policy.Backoff(5))
}
