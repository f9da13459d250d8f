package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AllotmentExchange is the topic exchange discovery events are published to
const AllotmentExchange = "ipo.allotments"

// EventPublisher delivers domain events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event interface{}) error
	Close()
}

// NoopPublisher drops every event; used when no broker is configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	return nil
}

func (NoopPublisher) Close() {}

// RabbitMQPublisher publishes JSON events to a durable topic exchange
type RabbitMQPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	mutex    sync.Mutex
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	if u.Path == "" {
		clean += "/"
	}
	return clean, nil
}

// NewRabbitMQPublisher dials the broker and declares the exchange once
func NewRabbitMQPublisher(amqpURL, exchange string) (*RabbitMQPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, WrapError(err, ErrorCategoryConfiguration, "INVALID_AMQP_URL", "RabbitMQPublisher", "connect", false)
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, WrapError(err, ErrorCategoryNetwork, "AMQP_DIAL_FAILED", "RabbitMQPublisher", "connect", true)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &RabbitMQPublisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// Publish marshals event to JSON and sends it with routingKey.
// amqp091 channels are not safe for concurrent publishes, hence the mutex.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         body,
		})
	if err != nil {
		return WrapError(err, ErrorCategoryNetwork, "AMQP_PUBLISH_FAILED", "RabbitMQPublisher", "publish", true)
	}

	logrus.WithFields(logrus.Fields{
		"component":   "RabbitMQPublisher",
		"exchange":    p.exchange,
		"routing_key": routingKey,
	}).Debug("Published event")
	return nil
}

// Close closes the channel and connection
func (p *RabbitMQPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
