package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidCursor = errors.New("invalid_cursor")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Size clamps the requested page size into [1, MaxPageSize].
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}
	return &cursor, nil
}

// BuildCursorPageInfo expects data fetched with limit+1 rows. Callers slice
// the extra row off themselves.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) string) PageInfo {
	if len(data) == 0 {
		return PageInfo{}
	}

	hasMore := len(data) > limit
	if hasMore {
		data = data[:limit]
	}

	info := PageInfo{HasMore: hasMore}
	if hasMore {
		info.NextPageToken = extractCursor(data[len(data)-1])
	}
	return info
}
