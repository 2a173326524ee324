package kafka

import (
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Client держит по одному writer на топик; writers создаются лениво.
type Client struct {
	Brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *Client) Writer(topic string) *kafka.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	c.writers[topic] = w
	return w
}

func (c *Client) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for _, w := range c.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.writers = make(map[string]*kafka.Writer)
	return first
}
