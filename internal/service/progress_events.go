package service

import "github.com/nats-io/nats.go"

// ProgressSubscription is an active subscription to a progress subject.
type ProgressSubscription interface {
	Unsubscribe() error
}

// ProgressEvents subscribes consumers to per-document progress subjects.
type ProgressEvents interface {
	Subscribe(subject string, handler func(payload []byte)) (ProgressSubscription, error)
}

type natsProgressEvents struct {
	conn *nats.Conn
}

// NewNATSProgressEvents adapts a NATS connection to the ProgressEvents
// interface. A nil connection yields nil, which disables progress streaming.
func NewNATSProgressEvents(conn *nats.Conn) ProgressEvents {
	if conn == nil {
		return nil
	}
	return &natsProgressEvents{conn: conn}
}

func (e *natsProgressEvents) Subscribe(subject string, handler func(payload []byte)) (ProgressSubscription, error) {
	return e.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}
