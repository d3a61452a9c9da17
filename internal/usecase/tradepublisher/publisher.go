package tradepublisher

import (
	"context"
	"encoding/json"

	tradev1 "github.com/Ephibbs/PanoMarket/internal/domain/trade/v1"
	"github.com/Ephibbs/PanoMarket/pkg/config"
	"github.com/Ephibbs/PanoMarket/pkg/errors"
	"github.com/Ephibbs/PanoMarket/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Publisher pushes executed trades onto per-market Kafka topics. Delivery is
// best-effort: a failed write is reported to the caller and not retried here.
type Publisher struct {
	kafkaWriter *kafka.Writer
	topicPrefix string
	logger      logger.Interface
}

var _ tradev1.Publisher = (*Publisher)(nil)

// NewPublisher creates a Kafka publisher for trade notifications. The topic
// is chosen per message, one topic per market.
func NewPublisher(cfg config.KafkaConfig, log logger.Interface) *Publisher {
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Balancer: &kafka.LeastBytes{},
	}

	return &Publisher{
		kafkaWriter: kafkaWriter,
		topicPrefix: cfg.TopicPrefix,
		logger:      log,
	}
}

// Publish writes the trades to the market's topic, keyed by market id so
// consumers see each market's trades in order.
func (p *Publisher) Publish(ctx context.Context, marketID string, trades []*tradev1.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	topic := p.topicPrefix + "." + marketID
	messages := make([]kafka.Message, 0, len(trades))
	for _, trade := range trades {
		payload, err := json.Marshal(trade)
		if err != nil {
			return errors.TracerFromError(err)
		}
		messages = append(messages, kafka.Message{
			Topic: topic,
			Key:   []byte(marketID),
			Value: payload,
		})
	}

	if err := p.kafkaWriter.WriteMessages(ctx, messages...); err != nil {
		p.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
			Key:   "topic",
			Value: topic,
		}, logger.Field{
			Key:   "trades",
			Value: len(trades),
		})
		return errors.NewTracer("failed to publish trades")
	}

	p.logger.DebugContext(ctx, "trades published", logger.Field{
		Key:   "topic",
		Value: topic,
	}, logger.Field{
		Key:   "trades",
		Value: len(trades),
	})
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.kafkaWriter.Close()
}
