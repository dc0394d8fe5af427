package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tetratelabs/wazero/api"
)

type capabilityKey struct{}

func withCapability(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, capabilityKey{}, name)
}

func capabilityFrom(ctx context.Context) string {
	name, _ := ctx.Value(capabilityKey{}).(string)
	return name
}

// LogMessage is the JSON payload a guest passes to reglet.log_message.
type LogMessage struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Attrs   []LogAttr `json:"attrs,omitempty"`
}

// LogAttr is a typed key/value pair. Type is one of string, int64, bool,
// float64, time (RFC 3339), or error; anything else is logged verbatim.
type LogAttr struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// logMessage implements the `log_message` host function.
// It receives a packed uint64 (ptr+len) pointing to a JSON-encoded LogMessage.
// It does not return any value.
func (e *Executor) logMessage(ctx context.Context, mod api.Module, stack []uint64) {
	ptr, length := unpackPtrLen(stack[0])

	payload, ok := mod.Memory().Read(ptr, length)
	if !ok {
		e.logger.ErrorContext(ctx, "host: failed to read log message from guest memory", "ptr", ptr, "len", length)
		return
	}

	var msg LogMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		e.logger.ErrorContext(ctx, "host: failed to unmarshal log message", "error", err)
		return
	}

	attrs := make([]slog.Attr, 0, len(msg.Attrs)+1)
	attrs = append(attrs, slog.String("capability", capabilityFrom(ctx)))
	for _, attr := range msg.Attrs {
		attrs = append(attrs, convertAttr(attr))
	}

	e.logger.LogAttrs(ctx, e.parseLevel(ctx, msg.Level), msg.Message, attrs...)
}

// parseLevel converts a string level to slog.Level, defaulting to info.
func (e *Executor) parseLevel(ctx context.Context, s string) slog.Level {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(s)); err != nil {
		e.logger.WarnContext(ctx, "host: unknown log level from capability", "level", s)
	}
	return level
}

// convertAttr converts a wire attribute to slog.Attr.
func convertAttr(attr LogAttr) slog.Attr {
	switch attr.Type {
	case "string":
		return slog.String(attr.Key, attr.Value)
	case "int64":
		if v, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
			return slog.Int64(attr.Key, v)
		}
	case "bool":
		if v, err := strconv.ParseBool(attr.Value); err == nil {
			return slog.Bool(attr.Key, v)
		}
	case "float64":
		if v, err := strconv.ParseFloat(attr.Value, 64); err == nil {
			return slog.Float64(attr.Key, v)
		}
	case "time":
		if v, err := time.Parse(time.RFC3339Nano, attr.Value); err == nil {
			return slog.Time(attr.Key, v)
		}
	case "error":
		return slog.Any(attr.Key, fmt.Errorf("%s", attr.Value))
	}
	// Unknown types and parse failures keep the raw value.
	return slog.Any(attr.Key, attr.Value)
}
