package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuongbtq/report-autofill/internal/storage"
)

// DecodeSubmissionCursor parses an opaque page cursor. An empty string
// decodes to nil, the first page.
func DecodeSubmissionCursor(cursorStr string) (*storage.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	createdAt, id, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	nanos, err := strconv.ParseInt(createdAt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &storage.Cursor{CreatedAt: nanos, ID: id}, nil
}

// EncodeSubmissionCursor renders a page cursor for clients
func EncodeSubmissionCursor(cursor *storage.Cursor) string {
	if cursor == nil {
		return ""
	}
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt, cursor.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
