package store

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/safar/fishmart/internal/apperr"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type CursorPage struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

var errBadCursor = apperr.Invalid("Invalid cursor")

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor returns nil for the empty cursor, meaning the first page.
func DecodeCursor(encoded string) (*OrderCursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errBadCursor
	}

	var cursor OrderCursor
	if err := json.Unmarshal(data, &cursor); err != nil || cursor.ID <= 0 {
		return nil, errBadCursor
	}
	return &cursor, nil
}

// ClampLimit maps a requested page size into [1, MaxPageSize].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
