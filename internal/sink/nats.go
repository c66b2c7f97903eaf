package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const DefaultSubjectPrefix = "edgewire.decoded"

var ErrNoPublisher = errors.New("sink: nats publisher is nil")

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each decoded message as JSON on
// <prefix>.<conn id>.
type NATSSink struct {
	pub    Publisher
	prefix string
}

func NewNATS(pub Publisher, prefix string) (*NATSSink, error) {
	if pub == nil {
		return nil, ErrNoPublisher
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: prefix}, nil
}

// ConnectNATS dials url and wraps the connection. The caller closes the
// returned *nats.Conn on shutdown.
func ConnectNATS(url, prefix string) (*NATSSink, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("edgewire"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("url", url).Msg("sink.nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("sink.nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("sink: connect nats %s: %w", url, err)
	}
	s, err := NewNATS(nc, prefix)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return s, nc, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Subject(connID string) string {
	return s.prefix + "." + subjectToken(connID)
}

func (s *NATSSink) Emit(msg stream.Message) error {
	data, err := json.Marshal(NewRecord(msg))
	if err != nil {
		return fmt.Errorf("sink: marshal: %w", err)
	}
	return s.pub.Publish(s.Subject(msg.Conn.ID), data)
}

// subjectToken keeps a connection id from splitting or wildcarding the
// subject.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}
