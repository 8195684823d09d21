package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/findosh/fintrack/internal/log"
	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// publisher is the subset of *amqp091.Channel the notifier needs
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPNotifier publishes messages to a durable direct exchange for an
// external delivery worker
type AMQPNotifier struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	pub          publisher
	exchangeName string
	queueName    string
	logger       *log.Logger
}

// NewAMQPNotifier dials the broker and declares the exchange and queue
func NewAMQPNotifier(url, exchangeName, queueName string, logger *log.Logger) (*AMQPNotifier, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	n := &AMQPNotifier{
		conn:         conn,
		channel:      channel,
		pub:          channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentNotify),
	}

	if err := n.setup(); err != nil {
		n.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return n, nil
}

func (n *AMQPNotifier) setup() error {
	if err := n.channel.ExchangeDeclare(n.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := n.channel.QueueDeclare(n.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// The queue name doubles as the routing key.
	if err := n.channel.QueueBind(n.queueName, n.queueName, n.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// SendEmail publishes an email message
func (n *AMQPNotifier) SendEmail(ctx context.Context, to, subject, body string) (Outcome, error) {
	return n.publish(ctx, &Message{Channel: ChannelEmail, To: to, Subject: subject, Body: body})
}

// SendSMS publishes a text message
func (n *AMQPNotifier) SendSMS(ctx context.Context, to, body string) (Outcome, error) {
	return n.publish(ctx, &Message{Channel: ChannelSMS, To: to, Body: body})
}

func (n *AMQPNotifier) publish(ctx context.Context, msg *Message) (Outcome, error) {
	msg.Timestamp = time.Now().UTC()
	body, err := msg.ToJSON()
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = n.pub.PublishWithContext(ctx, n.exchangeName, n.queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("publish message: %w", err)
	}

	n.logger.InfoContext(ctx, "notification published",
		"channel", msg.Channel,
		"exchange", n.exchangeName,
		"queue", n.queueName)
	return Outcome{}, nil
}

// Close shuts down the channel and connection
func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
