package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

// KafkaSink publishes each written point to a topic, keyed by asset id.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func SaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "chain-prices"
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	return cfg
}

// NewKafkaSink dials the brokers and returns a sink owning its producer.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	prod, err := sarama.NewSyncProducer(brokers, SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaSinkFromProducer(prod, topic), nil
}

func NewKafkaSinkFromProducer(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Publish(_ context.Context, points []models.PricePoint) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(points))
	for _, p := range points {
		js, err := json.Marshal(wirePoint(p))
		if err != nil {
			return fmt.Errorf("json marshal point: %w", err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: k.topic,
			Key:   sarama.StringEncoder(p.AssetID),
			Value: sarama.ByteEncoder(js),
		})
	}
	if err := k.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("send points to kafka: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error { return k.producer.Close() }

// Point is the wire form of a price point on the topic and the stream.
type Point struct {
	ID        string   `json:"id"`
	Ts        int64    `json:"ts"`
	Price     float64  `json:"price"`
	MarketCap *float64 `json:"marketCap,omitempty"`
}

func wirePoint(p models.PricePoint) Point {
	return Point{ID: p.AssetID, Ts: p.TimestampMs, Price: p.Price, MarketCap: p.MarketCap}
}
