// Package search turns a sparse set of named filter arguments into one
// parameterized statement over records joined with their owner, observatory
// and weather rows.
package search

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidFilter is returned for unknown keys, malformed arguments and
// timestamps that do not match TimeLayout.
var ErrInvalidFilter = errors.New("invalid search filter")

// TimeLayout is the accepted format for before/after, e.g. 2025-02-01T18:30:00.000+0200.
const TimeLayout = "2006-01-02T15:04:05.000Z0700"

// Key names one supported filter.
type Key string

const (
	KeyNickname       Key = "nickname"
	KeyIdentification Key = "identification"
	KeyBefore         Key = "before"
	KeyAfter          Key = "after"
)

// Filter maps supported keys to their raw values. A nil or empty filter selects everything.
type Filter map[Key]string

// Query is a rendered statement and its bind arguments, in placeholder order.
type Query struct {
	SQL  string
	Args []interface{}
}

const baseSelect = `SELECT r.id AS id, r.identifier AS identifier, r.description AS description, ` +
	`r.payload AS payload, r.right_ascension AS right_ascension, r.declination AS declination, ` +
	`r.owner_id AS owner_id, u.nickname AS owner_nickname, r.time_received AS time_received, ` +
	`r.update_reason AS update_reason, r.modified AS modified, ` +
	`o.id AS observatory_id, o.name AS observatory_name, o.latitude AS observatory_latitude, ` +
	`o.longitude AS observatory_longitude, ` +
	`w.id AS weather_id, w.temperature AS weather_temperature, w.pressure AS weather_pressure, ` +
	`w.humidity AS weather_humidity, w.cloud_cover AS weather_cloud_cover, w.light_volume AS weather_light_volume ` +
	`FROM records r ` +
	`JOIN users u ON r.owner_id = u.id ` +
	`LEFT JOIN observatories o ON r.observatory_id = o.id ` +
	`LEFT JOIN weather w ON o.weather_id = w.id`

const orderBy = ` ORDER BY r.id ASC`

// term is one production of the grammar: a clause with a single placeholder
// and the binder that produces its argument.
type term struct {
	key      Key
	fragment string
	bind     func(string) (interface{}, error)
}

// grammar is rendered in this order regardless of map iteration order, so
// clause order and argument order always agree.
var grammar = []term{
	{KeyNickname, "u.nickname = ?", bindString},
	{KeyIdentification, "r.identifier = ?", bindString},
	{KeyBefore, "r.time_received < ?", bindTimestamp},
	{KeyAfter, "r.time_received > ?", bindTimestamp},
}

// IsSupported reports whether k belongs to the grammar.
func IsSupported(k Key) bool {
	for _, t := range grammar {
		if t.key == k {
			return true
		}
	}
	return false
}

// Build renders the statement for f. Conditions are ANDed; results are ordered by record id.
func Build(f Filter) (Query, error) {
	for k := range f {
		if !IsSupported(k) {
			return Query{}, fmt.Errorf("%w: unknown key %q", ErrInvalidFilter, k)
		}
	}

	var (
		sb      strings.Builder
		args    []interface{}
		clauses []string
	)
	for _, t := range grammar {
		raw, ok := f[t.key]
		if !ok {
			continue
		}
		arg, err := t.bind(raw)
		if err != nil {
			return Query{}, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, t.key, err)
		}
		clauses = append(clauses, t.fragment)
		args = append(args, arg)
	}

	sb.WriteString(baseSelect)
	if len(clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}
	sb.WriteString(orderBy)

	return Query{SQL: sb.String(), Args: args}, nil
}

// ParseQuery parses a raw URL query string (without the leading '?') into a
// Filter. Every pair must be key=value with a supported key, and no key may
// repeat.
func ParseQuery(raw string) (Filter, error) {
	f := Filter{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: empty search argument %q", ErrInvalidFilter, pair)
		}
		// Percent-decoding only: '+' stays literal so offsets like +0200 survive.
		key, err := url.PathUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		value, err := url.PathUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		if !IsSupported(Key(key)) {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidFilter, key)
		}
		if _, dup := f[Key(key)]; dup {
			return nil, fmt.Errorf("%w: repeated key %q", ErrInvalidFilter, key)
		}
		f[Key(key)] = value
	}
	return f, nil
}

// ParseTime parses a before/after value.
func ParseTime(value string) (time.Time, error) {
	t, err := parseTime(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return t, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q does not match %s", value, TimeLayout)
	}
	return t, nil
}

// FormatTime renders t in TimeLayout, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func bindString(v string) (interface{}, error) {
	return v, nil
}

// Timestamps are stored as epoch milliseconds.
func bindTimestamp(v string) (interface{}, error) {
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	return t.UnixMilli(), nil
}
