// Package feed produces action events for a running service: replayed Okta
// system-log exports and synthetic traffic.
package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rcliao/ratemykey/internal/model"
)

const (
	ContextByIP   = "okta_by_ip"
	ContextByUser = "okta_by_user"
)

// ParseResult is the outcome of reading an export.
type ParseResult struct {
	Events  []model.ActionEvent
	Lines   int
	Skipped int // events dropped for a missing field
}

// ParseOkta reads a JSON-lines export. Every line yields up to two events:
// one keyed by source IP and one keyed by user, both with the action
// eventType:result. An event is skipped when any field it needs is missing.
// limit > 0 stops after that many lines.
func ParseOkta(r io.Reader, limit int) (*ParseResult, error) {
	res := &ParseResult{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		if limit > 0 && res.Lines >= limit {
			break
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		res.Lines++

		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", res.Lines, err)
		}

		date, err := publishedAt(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", res.Lines, err)
		}

		for _, by := range []struct{ context, keyField string }{
			{ContextByIP, "ipAddress"},
			{ContextByUser, "alternateid"},
		} {
			key, ok1 := field(rec, by.keyField)
			eventType, ok2 := field(rec, "eventType")
			result, ok3 := field(rec, "result")
			if !ok1 || !ok2 || !ok3 {
				res.Skipped++
				continue
			}
			res.Events = append(res.Events, model.ActionEvent{
				Context:   by.context,
				Key:       key,
				Action:    eventType + ":" + result,
				Timestamp: date,
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return res, nil
}

func field(rec map[string]any, name string) (string, bool) {
	v, ok := rec[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return s, s != ""
}

func publishedAt(rec map[string]any) (time.Time, error) {
	s, ok := field(rec, "published")
	if !ok {
		return time.Time{}, fmt.Errorf("missing published")
	}
	t, err := model.ParseDate(s, time.Time{})
	if err != nil {
		return time.Time{}, fmt.Errorf("published: %w", err)
	}
	return t, nil
}
