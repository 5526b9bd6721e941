package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const auditQueueName = "restaurant.events.audit"

// AuditConsumer binds a durable queue to every room of the events exchange
// and appends one line per event to a log file.
type AuditConsumer struct {
	URL      string
	Exchange string
	LogPath  string
	Log      *zap.Logger
}

// Run connects to RabbitMQ and consumes until ctx is cancelled.  Lost
// connections are retried with exponential backoff capped at 30s.
func (c AuditConsumer) Run(ctx context.Context) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("audit-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("audit-consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("audit-consumer: set QoS failed", zap.Error(err))
	}
	if err := declareExchange(ch, c.Exchange); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(auditQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(auditQueueName, "#", c.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(auditQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				log.Warn("audit-consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c AuditConsumer) handleMessage(body []byte) error {
	line, err := formatAuditLine(body)
	if err != nil {
		return err
	}
	path := c.LogPath
	if path == "" {
		path = filepath.Join("logs", "table_events.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// auditFields is the union of the payload fields worth logging.
type auditFields struct {
	TableID       string     `json:"table_id"`
	LockedBy      string     `json:"locked_by"`
	LockUntil     *time.Time `json:"lock_until"`
	ReleasedBy    string     `json:"released_by"`
	ReservationID string     `json:"reservation_id"`
	Status        string     `json:"status"`
	Actor         string     `json:"actor"`
}

func formatAuditLine(body []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if env.Name == "" || env.Room == "" {
		return "", errors.New("event without name or room")
	}
	var f auditFields
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &f); err != nil {
			return "", fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	parts := []string{
		fmt.Sprintf("[%s] %s", env.OccurredAt.UTC().Format(time.RFC3339), env.Name),
		"room=" + env.Room,
	}
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("table_id", f.TableID)
	add("reservation_id", f.ReservationID)
	add("status", f.Status)
	add("locked_by", f.LockedBy)
	if f.LockUntil != nil {
		add("lock_until", f.LockUntil.UTC().Format(time.RFC3339))
	}
	add("released_by", f.ReleasedBy)
	add("actor", f.Actor)
	return strings.Join(parts, " | ") + "\n", nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
