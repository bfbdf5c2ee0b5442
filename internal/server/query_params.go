package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const dateOnlyLayout = "2006-01-02"

var (
	errInvalidID   = errors.New("invalid_snowflake_id")
	errInvalidTime = errors.New("invalid_time")
)

// optional returns nil for a blank value and the parsed value otherwise.
func optional[T any](value string, parse func(string) (T, error)) (*T, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := parse(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalBool(value string) (*bool, error) {
	return optional(value, strconv.ParseBool)
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	return optional(value, func(s string) (snowflake.ID, error) {
		id, err := snowflake.ParseString(s)
		if err != nil || id == 0 {
			return 0, errInvalidID
		}
		return id, nil
	})
}

// requiredID parses a path or query value, aborting the request on failure.
func requiredID(c *gin.Context, field, value string) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(value)
	if err != nil || id == nil {
		AbortWithError(c, newValidationError(field, "invalid_"+field, "invalid "+field))
		return 0, false
	}
	return *id, true
}

// parseOptionalTime accepts RFC3339 or a bare date. A bare date is the start
// of that UTC day, or its last instant when endOfDay is set, so a date range
// filter includes the whole end date.
func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	return optional(value, func(s string) (time.Time, error) {
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed, nil
		}
		day, err := time.ParseInLocation(dateOnlyLayout, s, time.UTC)
		if err != nil {
			return time.Time{}, errInvalidTime
		}
		if endOfDay {
			return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return day, nil
	})
}
