// Package submitter delivers report fields to a Google Form.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

// DefaultSuccessText is the confirmation Google Forms shows in English
const DefaultSuccessText = "Your response has been recorded"

const maxResponseBytes = 1 << 20

// ErrInvalidFormURL is returned for a form URL that is not http(s)
var ErrInvalidFormURL = errors.New("form URL must start with http:// or https://")

// Config holds form submitter configuration
type Config struct {
	Logger *slog.Logger
	// FormURL is the form's viewform or formResponse URL
	FormURL string
	// FieldEntries maps profile field names to form input names (entry.N)
	FieldEntries map[string]string
	// SuccessText must appear in the response body for a submission to count
	SuccessText string
	// MinInterval paces consecutive submissions; zero disables pacing
	MinInterval time.Duration
	HTTPClient  *http.Client
}

// FormSubmitter posts one report per call to the form's formResponse endpoint
type FormSubmitter struct {
	logger      *slog.Logger
	endpoint    string
	entries     map[string]string
	successText string
	limiter     *rate.Limiter
	client      *http.Client
}

// NewFormSubmitter creates a new FormSubmitter instance
func NewFormSubmitter(cfg *Config) (*FormSubmitter, error) {
	endpoint, err := ResponseURL(cfg.FormURL)
	if err != nil {
		return nil, err
	}

	if len(cfg.FieldEntries) == 0 {
		return nil, errors.New("at least one field entry mapping is required")
	}

	successText := cfg.SuccessText
	if successText == "" {
		successText = DefaultSuccessText
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FormSubmitter{
		logger:      logger,
		endpoint:    endpoint,
		entries:     cfg.FieldEntries,
		successText: successText,
		limiter:     limiter,
		client:      client,
	}, nil
}

// ResponseURL validates a form URL and returns its formResponse endpoint
// with the English UI requested
func ResponseURL(formURL string) (string, error) {
	formURL = strings.TrimSpace(formURL)
	if formURL == "" {
		return "", fmt.Errorf("%w: form URL is required", ErrInvalidFormURL)
	}

	parsed, err := url.Parse(formURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidFormURL
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidFormURL)
	}

	if strings.HasSuffix(parsed.Path, "/viewform") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/viewform") + "/formResponse"
	}

	query := parsed.Query()
	if query.Get("hl") == "" {
		query.Set("hl", "en")
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

// Submit posts the fields once. Invalid fields and 4xx responses are fatal;
// network errors, timeouts, 429, 5xx and a missing confirmation are retryable.
func (s *FormSubmitter) Submit(ctx context.Context, fields domain.Fields) error {
	if err := domain.ValidateReportFields(fields); err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.NewRetryableError(fmt.Errorf("wait for submission slot: %w", err))
	}

	form := s.encode(fields)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build form request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("post form: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("read form response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return domain.NewRetryableError(fmt.Errorf("form endpoint returned status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("form rejected submission: status %d", resp.StatusCode)
	}

	if !strings.Contains(string(body), s.successText) {
		return domain.NewRetryableError(fmt.Errorf("confirmation %q not found in response", s.successText))
	}

	s.logger.Debug("Form submission confirmed",
		slog.String("student_name", fields.String("student_name")),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}

// encode maps profile fields to form entries, skipping empty values
func (s *FormSubmitter) encode(fields domain.Fields) url.Values {
	form := url.Values{}
	for name, entry := range s.entries {
		value := fields.String(name)
		if value == "" {
			continue
		}
		if name == "date" {
			if normalized, ok := domain.NormalizeDate(value); ok {
				value = normalized
			}
		}
		form.Set(entry, value)
	}
	return form
}
