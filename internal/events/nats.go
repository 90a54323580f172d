package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TriPot/internal/utils"

	"github.com/nats-io/nats.go"
)

// Publisher mirrors public table events onto the message bus.
type Publisher interface {
	Publish(ctx context.Context, tableID, event string, payload any) error
	Close()
}

// Envelope is the JSON body of every bus message.
type Envelope struct {
	TableID string    `json:"tableId"`
	Event   string    `json:"event"`
	At      time.Time `json:"at"`
	Data    any       `json:"data"`
}

// Subject maps an event to <prefix>.<table>.<event>. Dots and wildcards in
// the table id would split or widen the subject, so they are replaced.
func Subject(prefix, tableID, event string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return fmt.Sprintf("%s.%s.%s", prefix, r.Replace(tableID), event)
}

type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
func (Nop) Close()                                             {}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSPublisher struct {
	nc     conn
	prefix string
}

func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tripot"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				utils.Log.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			utils.Log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	utils.Log.Info("Connected to NATS", "url", url)
	return newNATSPublisher(nc, prefix), nil
}

func newNATSPublisher(nc conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Publish(ctx context.Context, tableID, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{TableID: tableID, Event: event, At: time.Now().UTC(), Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	subject := Subject(p.prefix, tableID, event)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		utils.Log.Warn("NATS drain failed", "err", err)
	}
}
