package store

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// LocalDateTimeLayout is the canonical wire format of a LocalDateTime.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

// Layouts carrying a zone. The wall clock is kept and the zone dropped.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// LocalDateTime is a date and time without a timezone. It is held as a
// UTC time.Time whose wall clock is the local value. The zero value
// marshals to JSON null and is stored as SQL NULL.
type LocalDateTime struct {
	time.Time
}

// NewLocalDateTime keeps the wall clock of t and discards its location.
func NewLocalDateTime(t time.Time) LocalDateTime {
	if t.IsZero() {
		return LocalDateTime{}
	}

	return LocalDateTime{time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.UTC,
	)}
}

// ParseLocalDateTime parses s in any of the accepted layouts. An empty
// string yields the zero value.
func ParseLocalDateTime(s string) (LocalDateTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LocalDateTime{}, nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewLocalDateTime(t), nil
		}
	}

	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewLocalDateTime(t), nil
		}
	}

	return LocalDateTime{}, fmt.Errorf("invalid local date-time %q", s)
}

// String formats the value in LocalDateTimeLayout, or "" when zero.
func (l LocalDateTime) String() string {
	if l.IsZero() {
		return ""
	}

	return l.Format(LocalDateTimeLayout)
}

// MarshalJSON implements json.Marshaler.
func (l LocalDateTime) MarshalJSON() ([]byte, error) {
	if l.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(l.Format("2006-01-02T15:04:05.999999999"))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *LocalDateTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*l = LocalDateTime{}

		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("local date-time must be a string: %w", err)
	}

	parsed, err := ParseLocalDateTime(s)
	if err != nil {
		return err
	}

	*l = parsed

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l LocalDateTime) MarshalYAML() (any, error) {
	if l.IsZero() {
		return nil, nil
	}

	return l.String(), nil
}

// Value implements driver.Valuer.
func (l LocalDateTime) Value() (driver.Value, error) {
	if l.IsZero() {
		return nil, nil
	}

	return l.Time, nil
}

// Scan implements sql.Scanner.
func (l *LocalDateTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = LocalDateTime{}
	case time.Time:
		*l = NewLocalDateTime(v)
	case string:
		return l.scanString(v)
	case []byte:
		return l.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into LocalDateTime", src)
	}

	return nil
}

func (l *LocalDateTime) scanString(s string) error {
	parsed, err := ParseLocalDateTime(s)
	if err != nil {
		return fmt.Errorf("scanning local date-time: %w", err)
	}

	*l = parsed

	return nil
}

// GormDataType implements schema.GormDataTypeInterface.
func (LocalDateTime) GormDataType() string {
	return string(schema.Time)
}

// GormDBDataType picks a zone-less column type per dialect.
func (LocalDateTime) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "timestamp"
	default:
		return "datetime"
	}
}
