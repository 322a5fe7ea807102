package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"
)

const tallyExchangeName = "attendance.tally"

// AMQPBridge wraps the in-memory bus with a RabbitMQ queue so that
// several server processes share one tally stream. Local publishes are
// mirrored to the broker; a background consumer re-broadcasts events
// from other processes into the local bus. Events carry an origin tag so
// a process never re-delivers its own.
//
// The bridge tries to be robust and to never panic; broker errors are
// logged and otherwise ignored, because a dropped event degrades
// real-time freshness, not correctness.
type AMQPBridge struct {
	local  *Memory
	url    string
	origin string
}

// NewAMQPBridge returns a bridge over the given local bus, reading the
// broker URL from RABBITMQ_URL or AMQP_URL. When neither is set it
// returns nil and callers keep using the local bus alone.
func NewAMQPBridge(local *Memory) *AMQPBridge {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		url = os.Getenv("AMQP_URL")
	}
	if url == "" {
		return nil
	}
	return &AMQPBridge{local: local, url: url, origin: uuid.NewString()}
}

// Subscribe delegates to the local bus.
func (b *AMQPBridge) Subscribe(topic string) *Subscription { return b.local.Subscribe(topic) }

// Unsubscribe delegates to the local bus.
func (b *AMQPBridge) Unsubscribe(sub *Subscription) { b.local.Unsubscribe(sub) }

// Publish fans out locally first, then mirrors the event to the broker
// off the caller's goroutine. The registering client never waits on the
// broker.
func (b *AMQPBridge) Publish(topic string, ev Event) {
	b.local.Publish(topic, ev)
	ev.Origin = b.origin
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.publishBroker(ctx, topic, ev); err != nil {
			log.Printf("bus: broker publish failed: %v", err)
		}
	}()
}

func (b *AMQPBridge) publishBroker(ctx context.Context, topic string, ev Event) error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Fanout exchange so every process receives every event (idempotent
	// declare). Transient: a tally that was never delivered is superseded
	// by the next one anyway.
	if err := ch.ExchangeDeclare(tallyExchangeName, "fanout", false, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(brokerEnvelope{Topic: topic, Event: ev})
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx,
		tallyExchangeName, // fanout exchange
		"",                // routing key ignored by fanout
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		},
	)
}

type brokerEnvelope struct {
	Topic string `json:"topic"`
	Event Event  `json:"event"`
}

// StartConsumer connects to the broker and re-broadcasts foreign events
// into the local bus. It runs a reconnect loop with exponential backoff
// and keeps running for the life of the process; call it from its own
// goroutine.
func (b *AMQPBridge) StartConsumer() {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(b.url)
		if err != nil {
			log.Printf("bus-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := b.consumeLoop(conn); err != nil {
			log.Printf("bus-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
		}
	}
}

func (b *AMQPBridge) consumeLoop(conn *amqp.Connection) error {
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(tallyExchangeName, "fanout", false, false, false, false, nil); err != nil {
		return err
	}
	// Exclusive auto-delete queue: each process gets its own copy of the
	// stream and the queue disappears with the connection.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(q.Name, "", tallyExchangeName, false, nil); err != nil {
		return err
	}
	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return err
	}
	for d := range msgs {
		var env brokerEnvelope
		if err := json.Unmarshal(d.Body, &env); err != nil {
			log.Printf("bus-consumer: bad payload: %v", err)
			continue
		}
		if env.Event.Origin == b.origin {
			continue // our own publish, already delivered locally
		}
		b.local.Publish(env.Topic, env.Event)
	}
	return errors.New("deliveries channel closed")
}
