package sink

import (
	"errors"
	"time"

	"github.com/danmuck/edgewire/internal/observability"
	"github.com/danmuck/edgewire/internal/protocol/codec"
	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink receives decoded messages after the stream adapter emits them.
type Sink interface {
	Name() string
	Emit(msg stream.Message) error
}

// Handler adapts s to a stream.Handler. Emit errors are logged and counted;
// they never fail the connection.
func Handler(s Sink) stream.Handler {
	return func(msg stream.Message) {
		err := s.Emit(msg)
		observability.RecordSinkEmit(s.Name(), err)
		if err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Str("conn", msg.Conn.ID).Msg("sink emit failed")
		}
	}
}

// Record is the JSON shape published for one decoded message.
type Record struct {
	Conn       stream.ConnInfo `json:"conn"`
	ReceivedAt time.Time       `json:"received_at"`
	Value      any             `json:"value"`
}

func NewRecord(msg stream.Message) Record {
	return Record{Conn: msg.Conn, ReceivedAt: msg.ReceivedAt, Value: Plain(msg.Value)}
}

// Plain rewrites decoded values into JSON-friendly shapes: tagged unions
// become {"tag","body"} objects and frames become arrays.
func Plain(v any) any {
	switch x := v.(type) {
	case codec.Tagged:
		return map[string]any{"tag": Plain(x.Tag), "body": Plain(x.Body)}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// LogSink writes each message to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func NewLog(logger zerolog.Logger, level zerolog.Level) *LogSink {
	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(msg stream.Message) error {
	s.logger.WithLevel(s.level).
		Str("conn", msg.Conn.ID).
		Str("transport", msg.Conn.Transport).
		Interface("value", Plain(msg.Value)).
		Msg("decoded")
	return nil
}

// Fanout emits to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Name() string { return "fanout" }

func (f Fanout) Emit(msg stream.Message) error {
	var errs []error
	for _, s := range f {
		if err := s.Emit(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
