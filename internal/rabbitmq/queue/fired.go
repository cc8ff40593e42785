package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"

	"github.com/agroaid/plant-reminder/internal/config"
)

// FiredEvent is published for every completed reminder occurrence. The UI
// process consumes the feed to render in-app alerts; this service only
// publishes.
type FiredEvent struct {
	ID         uuid.UUID `json:"id"`
	Owner      string    `json:"owner"`
	Task       string    `json:"task"`
	Plant      string    `json:"plant"`
	Message    string    `json:"message"`
	FiredAt    time.Time `json:"fired_at"`
	Occurrence int       `json:"occurrence"` // occurrence count after this firing
	Delivered  bool      `json:"delivered"`  // whether the notifier accepted the alert
}

// FiredEventQueue declares the fired-occurrence exchange and queue topology
// and publishes events to it.
type FiredEventQueue struct {
	Publisher  *rabbitmq.Publisher
	routingKey string
}

// NewFiredEventQueue binds the exchange, declares the durable event queue
// with its dead-letter queue, and returns a publisher for fired events.
func NewFiredEventQueue(ch *rabbitmq.Channel, cfg *config.Config) (*FiredEventQueue, error) {
	exchange := rabbitmq.NewExchange(cfg.RabbitMQ.Exchange, "direct")
	if err := exchange.BindToChannel(ch); err != nil {
		return nil, fmt.Errorf("failed to bind to exchange: %w", err)
	}

	qm := rabbitmq.NewQueueManager(ch)

	_, err := qm.DeclareQueue(cfg.RabbitMQ.DLQ, rabbitmq.QueueConfig{Durable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	mainArgs := map[string]interface{}{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitMQ.DLQ,
	}

	mainQ, err := qm.DeclareQueue(cfg.RabbitMQ.Queue, rabbitmq.QueueConfig{
		Durable: true,
		Args:    mainArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare event queue: %w", err)
	}

	if err := ch.QueueBind(mainQ.Name, cfg.RabbitMQ.RoutingKey, exchange.Name(), false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind the exchange to the event queue: %w", err)
	}

	pub := rabbitmq.NewPublisher(ch, exchange.Name())

	return &FiredEventQueue{Publisher: pub, routingKey: cfg.RabbitMQ.RoutingKey}, nil
}

// Publish sends a fired event to the exchange.
func (q *FiredEventQueue) Publish(ev FiredEvent, strategy retry.Strategy) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return q.Publisher.PublishWithRetry(body, q.routingKey, "application/json", strategy)
}
