package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/pedronora/internum-api/pkg/breaker"
)

type Kind string

const (
	KindLoanRequested Kind = "loan_requested"
	KindLoanApproved  Kind = "loan_approved"
	KindLoanRejected  Kind = "loan_rejected"
	KindLoanCanceled  Kind = "loan_canceled"
	KindLoanReturned  Kind = "loan_returned"
	KindLoanLate      Kind = "loan_late"
)

// Message is a fire-and-forget request for the downstream mailer. Delivery
// success or failure is not this service's concern.
type Message struct {
	ID             string     `json:"id"`
	Kind           Kind       `json:"kind"`
	RecipientName  string     `json:"recipientName"`
	RecipientEmail string     `json:"recipientEmail"`
	BookTitle      string     `json:"bookTitle"`
	BookAuthor     string     `json:"bookAuthor"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	OccurredAt     time.Time  `json:"occurredAt"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

type kafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, log *zap.Logger) Dispatcher {
	return &kafkaDispatcher{
		producer: producer,
		topic:    topic,
		log:      log.Named("notify"),
	}
}

// NewBreakerDispatcher shields the broker behind a circuit breaker. While
// the breaker is open, dispatch attempts fail fast instead of stacking up
// blocked producer calls; notifications are best effort anyway.
func NewBreakerDispatcher(next Dispatcher, cb breaker.CircuitBreaker) Dispatcher {
	return &breakerDispatcher{next: next, cb: cb}
}

type breakerDispatcher struct {
	next Dispatcher
	cb   breaker.CircuitBreaker
}

func (d *breakerDispatcher) Dispatch(ctx context.Context, msg Message) error {
	return d.cb.Call(func() error {
		return d.next.Dispatch(ctx, msg)
	})
}

func (d *kafkaDispatcher) Dispatch(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pm := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(msg.ID),
		Value: sarama.StringEncoder(data),
	}
	if _, _, err = d.producer.SendMessage(pm); err != nil {
		return err
	}
	d.log.Debug("notification dispatched",
		zap.String("id", msg.ID),
		zap.String("kind", string(msg.Kind)),
		zap.String("recipient", msg.RecipientEmail))
	return nil
}
