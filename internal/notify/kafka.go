package notify

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaTransport produces deliveries to a topic for downstream consumers
// (email, chat bridges). Records are keyed by ticket so a ticket's
// notifications stay ordered within a partition.
type KafkaTransport struct {
	client *kgo.Client
	topic  string
}

// NewKafkaTransport connects a producer to brokers.
func NewKafkaTransport(brokers []string, topic string) (*KafkaTransport, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaTransport{client: client, topic: topic}, nil
}

func (t *KafkaTransport) Name() string { return "kafka" }

func (t *KafkaTransport) Deliver(ctx context.Context, d Delivery) error {
	value, err := json.Marshal(d)
	if err != nil {
		return err
	}
	key := d.ID
	if d.TicketID != nil {
		key = strconv.FormatInt(*d.TicketID, 10)
	}
	record := &kgo.Record{
		Topic: t.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "delivery_id", Value: []byte(d.ID)},
			{Key: "severity", Value: []byte(d.Severity)},
		},
	}
	return t.client.ProduceSync(ctx, record).FirstErr()
}

// Close flushes and closes the producer.
func (t *KafkaTransport) Close() {
	t.client.Close()
}
