// Package eventrelay republishes connection lifecycle events onto a NATS
// subject, so an external system can watch connect/disconnect activity
// without polling the backend. Grounded on the teacher's
// pkg/core/eventbus_cluster_nats.go clustered EventBus: the same
// connect-once, subject-per-concern, JSON-body publish pattern, narrowed to
// the two events storm.EventRelay needs instead of a general pub/sub bus.
package eventrelay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fluxorio/stormsocket/pkg/storm"
)

// Config configures a NATSRelay.
type Config struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222".
	URL string
	// Prefix is prepended to the two subjects this relay publishes on.
	// Default: "stormsocket".
	Prefix string
	// Name is an optional NATS connection name.
	Name string
}

// connectEvent / disconnectEvent are the JSON bodies published on the
// connect/disconnect subjects.
type connectEvent struct {
	Slot       uint32    `json:"slot"`
	Generation uint8     `json:"generation"`
	FrontendID uint64    `json:"frontend_id"`
	RemoteIP   string    `json:"remote_ip"`
	RemotePort uint16    `json:"remote_port"`
	At         time.Time `json:"at"`
}

type disconnectEvent struct {
	Slot       uint32    `json:"slot"`
	Generation uint8     `json:"generation"`
	FrontendID uint64    `json:"frontend_id"`
	At         time.Time `json:"at"`
}

// NATSRelay implements storm.EventRelay by publishing each lifecycle event
// as a JSON message on <prefix>.connected / <prefix>.disconnected.
type NATSRelay struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSRelay connects to cfg.URL and returns a relay ready to publish.
func NewNATSRelay(cfg Config) (*NATSRelay, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "stormsocket"
	}

	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("eventrelay: connect: %w", err)
	}

	return &NATSRelay{nc: nc, prefix: prefix}, nil
}

func (r *NATSRelay) subjectConnected() string    { return r.prefix + ".connected" }
func (r *NATSRelay) subjectDisconnected() string { return r.prefix + ".disconnected" }

// Connected implements storm.EventRelay. Publish errors are intentionally
// swallowed: a relay outage must never affect connection handling, it can
// only be observed through the returned error on construction/Close.
func (r *NATSRelay) Connected(id storm.ConnectionId, fid storm.FrontendId, remoteIP string, remotePort uint16) {
	data, err := json.Marshal(connectEvent{
		Slot:       id.Slot,
		Generation: id.Generation,
		FrontendID: uint64(fid),
		RemoteIP:   remoteIP,
		RemotePort: remotePort,
		At:         time.Now(),
	})
	if err != nil {
		return
	}
	_ = r.nc.Publish(r.subjectConnected(), data)
}

// Disconnected implements storm.EventRelay.
func (r *NATSRelay) Disconnected(id storm.ConnectionId, fid storm.FrontendId) {
	data, err := json.Marshal(disconnectEvent{
		Slot:       id.Slot,
		Generation: id.Generation,
		FrontendID: uint64(fid),
		At:         time.Now(),
	})
	if err != nil {
		return
	}
	_ = r.nc.Publish(r.subjectDisconnected(), data)
}

// Subscribe registers handler on the connect subject, returning the
// subscription for the caller to Unsubscribe. Intended for test harnesses
// and auxiliary observers, not the backend itself.
func (r *NATSRelay) Subscribe(handler nats.MsgHandler) (*nats.Subscription, error) {
	return r.nc.Subscribe(r.subjectConnected(), handler)
}

// SubscribeDisconnected registers handler on the disconnect subject.
func (r *NATSRelay) SubscribeDisconnected(handler nats.MsgHandler) (*nats.Subscription, error) {
	return r.nc.Subscribe(r.subjectDisconnected(), handler)
}

// Close drains and closes the underlying NATS connection.
func (r *NATSRelay) Close() error {
	return r.nc.Drain()
}
