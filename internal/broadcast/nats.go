package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"livetrack.cityline.org/internal/logging"
	"livetrack.cityline.org/internal/models"
)

// ConnectionMetrics tracks the external transport's connection state.
type ConnectionMetrics interface {
	NATSSetConnected(connected bool)
}

// NATSBridge mirrors live events onto NATS subjects
// (livetrack.bus.<id>) so dashboards outside this process can consume the
// feed without holding an HTTP stream open.
type NATSBridge struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewNATSBridge(url string, logger *slog.Logger, m ConnectionMetrics) (*NATSBridge, error) {
	nc, err := nats.Connect(url,
		nats.Name("livetrack"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logging.LogOperation(logger, "nats_disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logging.LogOperation(logger, "nats_reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logging.LogOperation(logger, "nats_closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}

	return &NATSBridge{nc: nc, logger: logger}, nil
}

func (b *NATSBridge) PublishEvent(event models.Event) error {
	subject := fmt.Sprintf("livetrack.bus.%s", subjectToken(event.BusID))

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, payload)
}

func (b *NATSBridge) Close() {
	if b.nc != nil {
		_ = b.nc.Drain()
		b.nc.Close()
	}
}

// subjectToken sanitizes an id for use as a NATS subject token, which
// cannot contain spaces, '>', '*', or '.'.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
