package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/pubsub"
	"github.com/radieske/live-odds-engine/pkg/contracts/events"
)

// KafkaSink repassa todo ChangeEvent do broker pra um tópico Kafka,
// com a chave da mensagem no EventID pra manter a ordem por partição.
// É opcional: sem brokers configurados, o sink nem é construído.
type KafkaSink struct {
	writer *kafka.Writer
	broker *pubsub.Broker
	log    *zap.Logger
}

// NewKafkaSink inicializa o writer com timeouts e balanceamento por menor carga
func NewKafkaSink(brokers []string, topic string, b *pubsub.Broker, log *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaSink{writer: writer, broker: b, log: log}
}

// Run drena o broker até o contexto encerrar. Erro de publicação é logado
// e não interrompe o fluxo dos demais eventos.
func (s *KafkaSink) Run(ctx context.Context) {
	sub := s.broker.Subscribe(256, pubsub.TopicAll)
	defer s.broker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.publish(ctx, ev); err != nil {
				s.log.Error("failed to publish change event", zap.String("event_id", ev.EventID), zap.Error(err))
			}
		}
	}
}

func (s *KafkaSink) publish(ctx context.Context, ev events.ChangeEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.EventID),
		Value: value,
		Time:  time.Now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	s.log.Debug("published change event", zap.String("event_id", ev.EventID), zap.String("type", string(ev.Type)))
	return nil
}

// Close finaliza o writer e libera recursos associados
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
