// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// ScoreCursor marks a position in a date-descending score history page.
type ScoreCursor struct {
	CalendarDate string
}

// EncodeCursor serialises the cursor to an opaque token.
func EncodeCursor(c *ScoreCursor) string {
	if c == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(c.CalendarDate))
}

// DecodeCursor parses an encoded cursor token. An empty token yields a nil
// cursor, meaning start from the newest score.
func DecodeCursor(token string) (*ScoreCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	date := string(decoded)
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid cursor format")
	}
	return &ScoreCursor{CalendarDate: date}, nil
}
