// Package args converts raw tool-call argument strings into argument maps.
// Parse is total: any input, including truncated JSON, arrays, primitives and
// binary garbage, yields a map and never an error. Strict JSON decoding is
// the primary path; a bounded regex fallback recovers high-value fields from
// near-JSON payloads that providers occasionally emit.
package args

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/moneywise-vn/advisor/runtime/advisor/telemetry"
)

// Parser repairs raw argument strings. The zero value is not usable; build
// one with NewParser.
type Parser struct {
	log     telemetry.Logger
	metrics telemetry.Metrics
}

// NewParser builds a parser that reports fallback activations and suspicious
// input through the given telemetry sinks. Nil sinks default to no-ops.
func NewParser(log telemetry.Logger, metrics telemetry.Metrics) *Parser {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Parser{log: log, metrics: metrics}
}

// Fallback recovery is deliberately lossy and capped to this fixed field
// list. It is a salvage layer for truncated provider payloads, not a second
// parser; anything beyond these fields is dropped.
var (
	reComponentID = regexp.MustCompile(`"component_id"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reToolID      = regexp.MustCompile(`"tool_id"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reTitle       = regexp.MustCompile(`"title"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reAmount      = regexp.MustCompile(`"amount"\s*:\s*(-?\d+(?:\.\d+)?)`)
	reContext     = regexp.MustCompile(`"context"\s*:\s*\{`)
)

// Parse converts a raw argument string into an argument map. Empty input is
// a valid no-argument invocation and returns an empty map. Valid JSON that
// is not an object (array, primitive, null) is rejected to an empty map.
func (p *Parser) Parse(ctx context.Context, callID, raw string) map[string]any {
	raw = p.sanitize(ctx, callID, raw)
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}
	}

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			if obj, ok := decoded.(map[string]any); ok && obj != nil {
				return obj
			}
			// Valid JSON but not an object. Nothing to salvage.
			return map[string]any{}
		}
	}

	return p.fallback(ctx, callID, trimmed)
}

// sanitize strips NUL and Unicode replacement characters. Their presence
// usually means the provider stream was corrupted upstream, so it is logged.
func (p *Parser) sanitize(ctx context.Context, callID, raw string) string {
	if !strings.ContainsAny(raw, "\x00�") {
		return raw
	}
	p.log.Warn(ctx, "suspicious bytes in tool arguments", "call_id", callID)
	return strings.Map(func(r rune) rune {
		if r == 0 || r == '�' {
			return -1
		}
		return r
	}, raw)
}

func (p *Parser) fallback(ctx context.Context, callID, raw string) map[string]any {
	out := map[string]any{}
	if m := reComponentID.FindStringSubmatch(raw); m != nil {
		out["component_id"] = unescape(m[1])
	}
	if m := reToolID.FindStringSubmatch(raw); m != nil {
		out["tool_id"] = unescape(m[1])
	}
	if m := reTitle.FindStringSubmatch(raw); m != nil {
		out["title"] = unescape(m[1])
	}
	if m := reAmount.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			out["amount"] = n
		}
	}
	if nested, ok := extractContext(raw); ok {
		out["context"] = nested
	}
	if len(out) == 0 {
		p.log.Warn(ctx, "tool arguments unrecoverable", "call_id", callID, "len", len(raw))
		return out
	}
	p.metrics.IncCounter(telemetry.MetricParserFallbacks, 1)
	p.log.Warn(ctx, "tool arguments recovered by fallback", "call_id", callID, "fields", len(out))
	return out
}

// extractContext locates the "context" object and decodes the balanced brace
// span. Truncated objects, where the stream ended before the braces closed,
// are not recovered.
func extractContext(raw string) (map[string]any, bool) {
	loc := reContext.FindStringIndex(raw)
	if loc == nil {
		return nil, false
	}
	span := balancedObject(raw[loc[1]-1:])
	if span == "" {
		return nil, false
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(span), &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

// balancedObject returns the shortest prefix of s that forms a balanced
// {...} span, tracking strings and escapes so braces inside values do not
// miscount. Returns "" when s never balances.
func balancedObject(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func unescape(s string) string {
	var decoded string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &decoded); err != nil {
		return s
	}
	return decoded
}
