// Package events publishes domain events for other services (history, notifications).
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wfunc/quizarena/logger"
)

const (
	RoutingMatchCompleted     = "match.completed"
	RoutingChallengeCompleted = "challenge.completed"

	publishTimeout = 5 * time.Second
)

// MatchCompleted is emitted when a live room ends with a result.
type MatchCompleted struct {
	RoomID      string         `json:"roomId"`
	ChallengeID string         `json:"challengeId"`
	Category    string         `json:"category"`
	Scores      map[string]int `json:"scores"`
	WinnerID    string         `json:"winnerId,omitempty"`
	IsTie       bool           `json:"isTie"`
	Outcome     string         `json:"outcome"`
	CompletedAt time.Time      `json:"completedAt"`
}

// ChallengeCompleted is emitted when an async challenge completes.
type ChallengeCompleted struct {
	ChallengeID      string    `json:"challengeId"`
	ChallengerID     string    `json:"challengerId"`
	OpponentID       string    `json:"opponentId"`
	ChallengerScore  int       `json:"challengerScore"`
	OpponentScore    int       `json:"opponentScore"`
	WinnerID         string    `json:"winnerId,omitempty"`
	TieBreakerRounds int       `json:"tieBreakerRounds"`
	CompletedAt      time.Time `json:"completedAt"`
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, routingKey string, event any) error { return nil }
func (NopPublisher) Close() error                                                    { return nil }

// AMQPPublisher publishes JSON events to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mutex    sync.Mutex
}

func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	logger.Log.Infof("Publishing events to exchange %s", exchange)
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// amqp channels are not safe for concurrent publishing
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.ch.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now(),
			Body:         body,
		})
}

func (p *AMQPPublisher) Close() error {
	return errors.Join(p.ch.Close(), p.conn.Close())
}

// Recorder keeps published events in memory.
type Recorder struct {
	mutex  sync.Mutex
	Events []Recorded
}

type Recorded struct {
	RoutingKey string
	Event      any
}

func (r *Recorder) Publish(ctx context.Context, routingKey string, event any) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Events = append(r.Events, Recorded{RoutingKey: routingKey, Event: event})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Keys returns the routing keys published so far.
func (r *Recorder) Keys() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	keys := make([]string, len(r.Events))
	for i, e := range r.Events {
		keys[i] = e.RoutingKey
	}
	return keys
}
