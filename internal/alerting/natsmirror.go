package alerting

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/banshee-data/airspace.report/internal/monitoring"
)

// NATSMirror republishes bus events to a NATS subject hierarchy so external
// systems can consume the alert stream without holding a WebSocket. Subjects
// are "airspace.events.<type>".
type NATSMirror struct {
	conn *nats.Conn
	sub  *Subscription
	bus  *Bus
	done chan struct{}
}

// NewNATSMirror connects to the NATS server at url and begins mirroring.
func NewNATSMirror(url string, bus *Bus) (*NATSMirror, error) {
	conn, err := nats.Connect(url,
		nats.Name("airspace-event-mirror"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	m := &NATSMirror{
		conn: conn,
		sub:  bus.Subscribe(),
		bus:  bus,
		done: make(chan struct{}),
	}
	go m.run()
	return m, nil
}

func (m *NATSMirror) run() {
	defer close(m.done)
	for event := range m.sub.Events {
		payload, err := event.Encode()
		if err != nil {
			monitoring.Logf("failed to encode event for NATS: %v", err)
			continue
		}
		subject := "airspace.events." + event.Type
		if err := m.conn.Publish(subject, payload); err != nil {
			monitoring.Logf("failed to publish %s to NATS: %v", subject, err)
		}
	}
}

// Close detaches from the bus, flushes, and drops the connection.
func (m *NATSMirror) Close() {
	m.bus.Unsubscribe(m.sub.ID)
	<-m.done
	if err := m.conn.Flush(); err != nil {
		monitoring.Logf("failed to flush NATS connection: %v", err)
	}
	m.conn.Close()
}
