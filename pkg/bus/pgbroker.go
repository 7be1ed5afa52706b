package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/ckindle-42/portal/pkg/models"
)

// notifyChannel is the single Postgres channel all Portal instances
// share.
const notifyChannel = "portal_events"

// maxNotifyPayload stays under PostgreSQL's 8000-byte NOTIFY limit.
// Oversized events are skipped for cross-instance delivery; local
// delivery has already happened by the time the broker sees them.
const maxNotifyPayload = 7900

// wireEvent is the NOTIFY payload: the event plus the origin instance
// id used to drop self-originated deliveries.
type wireEvent struct {
	Origin string       `json:"origin"`
	Event  models.Event `json:"event"`
}

// PGBroker relays events between Portal instances through PostgreSQL
// LISTEN/NOTIFY. Publishing goes through a pooled connection; the
// receive loop owns one dedicated pgx connection, which avoids the
// "conn busy" race between WaitForNotification and Exec.
type PGBroker struct {
	connString string
	instanceID string

	db *sql.DB

	connMu sync.Mutex
	conn   *pgx.Conn

	deliver func(models.Event)

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewPGBroker opens the publish pool. The LISTEN connection is not
// established until Start.
func NewPGBroker(connString string) (*PGBroker, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("opening notify pool: %w", err)
	}
	return &PGBroker{
		connString: connString,
		instanceID: uuid.New().String(),
		db:         db,
	}, nil
}

// InstanceID returns the id stamped on this broker's outgoing
// payloads.
func (p *PGBroker) InstanceID() string { return p.instanceID }

// Publish implements Broker via pg_notify.
func (p *PGBroker) Publish(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(wireEvent{Origin: p.instanceID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshaling notify payload: %w", err)
	}
	if len(payload) > maxNotifyPayload {
		slog.Warn("Event exceeds NOTIFY payload limit, skipping cross-instance delivery",
			"event_type", ev.Type, "bytes", len(payload))
		return nil
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// Start implements Broker: establishes the dedicated LISTEN connection
// and launches the receive loop. ctx should outlive the broker; Stop
// cancels the loop independently.
func (p *PGBroker) Start(ctx context.Context, deliver func(models.Event)) error {
	conn, err := pgx.Connect(ctx, p.connString)
	if err != nil {
		return fmt.Errorf("connecting for LISTEN: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("LISTEN %s failed: %w", notifyChannel, err)
	}

	p.connMu.Lock()
	p.conn = conn
	p.connMu.Unlock()
	p.deliver = deliver

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancelLoop = cancel
	p.loopDone = make(chan struct{})
	go func() {
		defer close(p.loopDone)
		p.receiveLoop(loopCtx)
	}()

	slog.Info("Postgres event broker started",
		"channel", notifyChannel, "instance_id", p.instanceID)
	return nil
}

// receiveLoop blocks on WaitForNotification and dispatches each
// payload. It is the sole goroutine touching the pgx connection.
func (p *PGBroker) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.connMu.Lock()
		conn := p.conn
		p.connMu.Unlock()

		if conn == nil {
			p.reconnect(ctx)
			continue
		}

		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("NOTIFY receive error", "error", err)
			p.reconnect(ctx)
			continue
		}

		p.handlePayload([]byte(notification.Payload))
	}
}

func (p *PGBroker) handlePayload(payload []byte) {
	var wire wireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		slog.Warn("Dropping malformed NOTIFY payload", "error", err)
		return
	}
	if wire.Origin == p.instanceID {
		// Our own publish echoed back; local delivery already happened.
		return
	}
	p.deliver(wire.Event)
}

// reconnect re-establishes the LISTEN connection with exponential
// backoff, capped at 30s.
func (p *PGBroker) reconnect(ctx context.Context) {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.conn != nil {
		_ = p.conn.Close(ctx)
		p.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, p.connString)
		if err != nil {
			slog.Error("Broker reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
			slog.Error("Re-LISTEN failed", "error", err)
			_ = conn.Close(ctx)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}

		p.conn = conn
		slog.Info("Postgres event broker reconnected")
		return
	}
}

// Stop implements Broker: signals the receive loop to exit, waits for
// it, then closes both connections.
func (p *PGBroker) Stop() {
	if p.cancelLoop != nil {
		p.cancelLoop()
	}
	if p.loopDone != nil {
		<-p.loopDone
	}

	p.connMu.Lock()
	if p.conn != nil {
		_ = p.conn.Close(context.Background())
		p.conn = nil
	}
	p.connMu.Unlock()

	_ = p.db.Close()
}
