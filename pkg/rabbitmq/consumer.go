package rabbitmq

import (
	"errors"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery body. Returning false asks for redelivery.
type Handler func(body []byte) bool

const (
	consumerPrefetch  = 10
	redeliveryBackoff = time.Second
)

// Consumer delivers messages from one durable queue to per-routing-key handlers.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(amqpURL string) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch}, nil
}

// ConsumeWithBindings declares queueName, binds it to exchange for every
// routing key in bindings and starts delivering in the background.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	handlers := make(map[string]Handler, len(bindings))
	for routingKey, handler := range bindings {
		if handler != nil {
			handlers[routingKey] = handler
		}
	}
	if len(handlers) == 0 {
		return errors.New("no bindings provided")
	}

	if err := declareTopicExchange(c.ch, exchange); err != nil {
		return err
	}
	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for routingKey := range handlers {
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	deliveries, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range deliveries {
			switch dispatch(handlers, d.RoutingKey, d.Body) {
			case outcomeAck:
				d.Ack(false)
			case outcomeDrop:
				log.Printf("level=warn component=rabbitmq_consumer msg=\"no handler; dropping\" queue=%s routing_key=%s", q.Name, d.RoutingKey)
				d.Ack(false)
			case outcomeRetry:
				log.Printf("level=warn component=rabbitmq_consumer msg=\"handler failed; re-queuing\" queue=%s routing_key=%s redelivered=%t", q.Name, d.RoutingKey, d.Redelivered)
				// A message failing again is held back briefly so a persistent
				// fault does not spin the queue.
				if d.Redelivered {
					time.Sleep(redeliveryBackoff)
				}
				d.Nack(false, true)
			}
		}
		log.Printf("level=info component=rabbitmq_consumer msg=\"delivery channel closed\" queue=%s", q.Name)
	}()

	return nil
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeDrop
	outcomeRetry
)

func dispatch(handlers map[string]Handler, routingKey string, body []byte) outcome {
	handler, ok := handlers[routingKey]
	if !ok {
		return outcomeDrop
	}
	if !handler(body) {
		return outcomeRetry
	}
	return outcomeAck
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
