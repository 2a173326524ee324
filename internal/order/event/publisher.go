package event

import (
	"context"
	"encoding/json"
	"time"

	segkafka "github.com/segmentio/kafka-go"

	"github.com/lingbai-i/mall-order-go/pkg/kafka"
	"github.com/lingbai-i/mall-order-go/pkg/logging"
)

// Writer is the slice of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...segkafka.Message) error
}

// Publisher fans lifecycle events out to the broker, one topic per
// routing key. Delivery is at-most-once: serialization and transport
// failures are logged and the event is dropped. The caller's state
// transition has already committed and is never rolled back here.
type Publisher struct {
	service string
	writer  func(topic string) Writer
	enabled bool
}

func NewPublisher(service string, client *kafka.Client) *Publisher {
	return &Publisher{
		service: service,
		enabled: client.Enabled(),
		writer:  func(topic string) Writer { return client.Writer(topic) },
	}
}

// NewPublisherFunc wires a custom writer factory; used by tests.
func NewPublisherFunc(service string, writer func(topic string) Writer) *Publisher {
	return &Publisher{service: service, enabled: writer != nil, writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if !p.enabled {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Log(logging.Fields{
			Service: p.service, OrderID: ev.OrderID, OrderNo: ev.OrderNo,
			EventID: ev.EventID, Step: "publish_" + string(ev.Type),
			Status: "serialize_error", Error: err.Error(),
		})
		return
	}
	msg := segkafka.Message{Key: []byte(ev.OrderNo), Value: data, Time: time.Now().UTC()}
	if err := p.writer(string(ev.Type)).WriteMessages(ctx, msg); err != nil {
		logging.Log(logging.Fields{
			Service: p.service, OrderID: ev.OrderID, OrderNo: ev.OrderNo,
			EventID: ev.EventID, Step: "publish_" + string(ev.Type),
			Status: "publish_error", Error: err.Error(),
		})
		return
	}
	logging.Log(logging.Fields{
		Service: p.service, OrderID: ev.OrderID, OrderNo: ev.OrderNo,
		EventID: ev.EventID, Step: "publish_" + string(ev.Type), Status: "published",
	})
}
