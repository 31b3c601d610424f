package event

import (
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/domain"
)

// LogSink prints a compact line per event; bodies stay out of the logs.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Consume(event domain.Event) {
	switch {
	case event.Downstream != nil:
		e := event.Downstream
		log.WithFields(log.Fields{
			"trace":  e.TraceID,
			"method": e.RequestMethod,
			"path":   e.RequestPath,
			"status": e.ResponseStatus,
		}).Debug("downstream")
	case event.Upstream != nil:
		e := event.Upstream
		fields := log.Fields{
			"trace":      e.TraceID,
			"provider":   e.Provider,
			"operation":  e.Operation,
			"model":      e.Model,
			"status":     e.ResponseStatus,
			"attempt":    e.AttemptNo,
			"credential": e.CredentialID,
		}
		if e.Usage != nil {
			fields["input_tokens"] = e.Usage.InputTokens
			fields["output_tokens"] = e.Usage.OutputTokens
		}
		log.WithFields(fields).Debug("upstream")
	case event.Operational != nil:
		e := event.Operational
		log.WithFields(log.Fields{
			"kind":       e.Kind,
			"provider":   e.Provider,
			"credential": e.CredentialID,
			"model":      e.Model,
			"reason":     e.Reason,
		}).Info("credential availability")
	}
}

// Appender persists events; the storage layer implements it.
type Appender interface {
	AppendEvent(event domain.Event) error
}

// StoreSink writes events to a durable appender. Failures are logged and
// the event retried once; the appender is expected to be idempotent.
type StoreSink struct {
	Appender Appender
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Consume(event domain.Event) {
	if err := s.Appender.AppendEvent(event); err != nil {
		log.WithError(err).Warn("event append failed, retrying once")
		if err := s.Appender.AppendEvent(event); err != nil {
			log.WithError(err).Error("event append failed permanently")
		}
	}
}

// encodeEvent renders an event for feed sinks.
func encodeEvent(event domain.Event) ([]byte, error) {
	return sonic.Marshal(event)
}
