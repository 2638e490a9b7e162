package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/pubsub"
	"github.com/radieske/live-odds-engine/internal/engine/store"
	"github.com/radieske/live-odds-engine/pkg/contracts/events"
	"github.com/radieske/live-odds-engine/pkg/contracts/topics"
)

// keyEvent gera a chave Redis do snapshot de um evento
func keyEvent(eventID string) string { return "odds:event:" + eventID }

// RedisSink espelha snapshots de eventos no Redis e retransmite os
// ChangeEvents no canal Pub/Sub, permitindo que outras instâncias
// (ou consumidores externos) recebam o broadcast. Opcional.
type RedisSink struct {
	rdb    *redis.Client
	broker *pubsub.Broker
	store  *store.EventStore
	log    *zap.Logger
	ttl    time.Duration
}

// NewRedisSink cria o sink com TTL configurável pros snapshots
func NewRedisSink(rdb *redis.Client, b *pubsub.Broker, st *store.EventStore, ttl time.Duration, log *zap.Logger) *RedisSink {
	return &RedisSink{rdb: rdb, broker: b, store: st, log: log, ttl: ttl}
}

// Run drena o broker até o contexto encerrar
func (s *RedisSink) Run(ctx context.Context) {
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
			s.handle(ctx, ev)
		}
	}
}

func (s *RedisSink) handle(ctx context.Context, ev events.ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, topics.OddsChangesBroadcast, payload).Err(); err != nil {
		s.log.Warn("redis publish failed", zap.Error(err))
	}

	// snapshot atualizado do evento fica disponível pra leitura direta
	cached := s.store.Get(ev.EventID)
	if cached == nil {
		return
	}
	b, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, keyEvent(ev.EventID), b, s.ttl).Err(); err != nil {
		s.log.Warn("redis set failed", zap.String("event_id", ev.EventID), zap.Error(err))
	}
}
