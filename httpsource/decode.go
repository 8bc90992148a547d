package httpsource

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	auditview "github.com/kafeiih/go-auditview"
)

var parserPool fastjson.ParserPool

// timestampLayouts are tried in order for string timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Decode normalizes a log response body into entries. It accepts a bare JSON
// array or an object with a "logs" array. Any other well-formed JSON is "no
// data" and yields an empty list; only a body that is not JSON is an error.
func Decode(body []byte) ([]auditview.LogEntry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []auditview.LogEntry{}, nil
	}

	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, &auditview.FetchError{Message: "malformed log payload", Err: err}
	}

	var items []*fastjson.Value
	switch v.Type() {
	case fastjson.TypeArray:
		items, _ = v.Array()
	case fastjson.TypeObject:
		logs := v.Get("logs")
		if logs == nil || logs.Type() != fastjson.TypeArray {
			return []auditview.LogEntry{}, nil
		}
		items, _ = logs.Array()
	default:
		return []auditview.LogEntry{}, nil
	}

	entries := make([]auditview.LogEntry, 0, len(items))
	for _, item := range items {
		if item.Type() != fastjson.TypeObject {
			continue
		}
		entries = append(entries, decodeEntry(item))
	}
	return entries, nil
}

// decodeEntry copies everything it needs out of v; parser values are only
// valid until the parser is returned to the pool.
func decodeEntry(v *fastjson.Value) auditview.LogEntry {
	e := auditview.LogEntry{
		ID:      scalar(v.Get("id")),
		Level:   auditview.NormalizeLevel(scalar(v.Get("level"))),
		Message: scalar(v.Get("message")),
		Raw:     v.MarshalTo(nil),
	}
	if e.Message == "" {
		e.Message = scalar(v.Get("msg"))
	}

	tsVal := v.Get("timestamp")
	if tsVal == nil {
		tsVal = v.Get("createdAt")
	}
	e.RawTimestamp, e.Timestamp = parseTimestamp(tsVal)

	e.Actor = decodeActor(v.Get("actor"))
	e.Resource = decodeResource(v.Get("resource"))

	if c := v.Get("context"); c != nil {
		switch c.Type() {
		case fastjson.TypeString:
			e.Context = string(c.GetStringBytes())
		case fastjson.TypeNull:
		default:
			e.Context = string(c.MarshalTo(nil))
		}
	}

	return e
}

func decodeActor(v *fastjson.Value) *auditview.Actor {
	if v == nil {
		return nil
	}
	switch v.Type() {
	case fastjson.TypeString:
		if name := string(v.GetStringBytes()); name != "" {
			return &auditview.Actor{Name: name}
		}
	case fastjson.TypeObject:
		a := auditview.Actor{
			Name:  scalar(v.Get("name")),
			Email: scalar(v.Get("email")),
			ID:    scalar(v.Get("id")),
		}
		if a != (auditview.Actor{}) {
			return &a
		}
	}
	return nil
}

func decodeResource(v *fastjson.Value) *auditview.Resource {
	if v == nil {
		return nil
	}
	switch v.Type() {
	case fastjson.TypeString:
		if typ := string(v.GetStringBytes()); typ != "" {
			return &auditview.Resource{Type: typ}
		}
	case fastjson.TypeObject:
		r := auditview.Resource{
			Type: scalar(v.Get("type")),
			ID:   scalar(v.Get("id")),
		}
		if r != (auditview.Resource{}) {
			return &r
		}
	}
	return nil
}

// parseTimestamp returns the raw value as a string and the parsed instant.
// Numbers are Unix milliseconds. Unparsable values keep their raw form so
// the derived key stays stable.
func parseTimestamp(v *fastjson.Value) (string, time.Time) {
	raw := scalar(v)
	if raw == "" {
		return "", time.Time{}
	}

	if v.Type() == fastjson.TypeNumber {
		ms, err := v.Float64()
		if err != nil {
			return raw, time.Time{}
		}
		return raw, time.UnixMilli(int64(ms))
	}

	s := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return raw, t
		}
	}
	return raw, time.Time{}
}

// scalar coerces a string, number or boolean value to a string.
func scalar(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber, fastjson.TypeTrue, fastjson.TypeFalse:
		return v.String()
	}
	return ""
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(status int, body []byte) string {
	p := parserPool.Get()
	defer parserPool.Put(p)

	if v, err := p.ParseBytes(body); err == nil && v.Type() == fastjson.TypeObject {
		for _, path := range [][]string{{"message"}, {"error"}, {"error", "message"}} {
			if s := v.GetStringBytes(path...); len(s) > 0 {
				return string(s)
			}
		}
	}
	return fmt.Sprintf("failed to load logs (HTTP %d)", status)
}
