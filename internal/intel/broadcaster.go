// Package intel publishes accepted threat reports to an AMQP queue so
// peer organizations can mirror the network's intelligence feed.
package intel

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/securepremium/securepremium/internal/reputation"
)

// DefaultQueue is the queue threat reports are published to.
const DefaultQueue = "securepremium.threat-reports"

// Broadcaster is a fire-and-forget AMQP publisher for threat reports.
// It satisfies reputation.Broadcaster. Delivery is best effort; there
// is no consensus or acknowledgement protocol on top.
type Broadcaster struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *zap.Logger
}

// NewBroadcaster dials the broker and declares the publish queue.
func NewBroadcaster(url, queue string, logger *zap.Logger) (*Broadcaster, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}

	logger.Info("threat intel broadcaster connected", zap.String("queue", queue))
	return &Broadcaster{conn: conn, channel: ch, queue: queue, logger: logger}, nil
}

// BroadcastThreatReport publishes one report as JSON.
func (b *Broadcaster) BroadcastThreatReport(report *reputation.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	err = b.channel.Publish(
		"",      // exchange
		b.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("publish report %s: %w", report.ReportID, err)
	}

	b.logger.Debug("threat report broadcast",
		zap.String("report_id", report.ReportID),
		zap.String("queue", b.queue),
	)
	return nil
}

// Close shuts down the channel and connection.
func (b *Broadcaster) Close() error {
	if err := b.channel.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}
