package store

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

const shardCount = 16

// Filter restringe listagens do cache de eventos
type Filter struct {
	Sport  string
	Status model.Status
}

// EventStore é o dono do estado mais recente de cada evento.
// O mapa é particionado em shards por hash do id; upserts de ids distintos
// seguem em paralelo, upserts do mesmo id serializam no lock do shard.
type EventStore struct {
	log    *zap.Logger
	shards [shardCount]shard
}

type shard struct {
	mu     sync.RWMutex
	events map[string]*model.Event
}

// NewEventStore cria um cache vazio
func NewEventStore(log *zap.Logger) *EventStore {
	s := &EventStore{log: log}
	for i := range s.shards {
		s.shards[i].events = make(map[string]*model.Event)
	}
	return s
}

func (s *EventStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

// Get devolve uma cópia do evento, ou nil se desconhecido
func (s *EventStore) Get(id string) *model.Event {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ev, ok := sh.events[id]
	if !ok {
		return nil
	}
	c := ev.Clone()
	return &c
}

// Upsert grava o evento e devolve o valor anterior (nil na primeira vez).
// Leitura do anterior e escrita do novo são atômicas por id, então o
// chamador pode diffar sem segunda leitura. O cache é o único ponto de
// merge: campos que o fornecedor não mandou (placar, mercados suspensos)
// são herdados do valor anterior, e status nunca retrocede no ciclo de vida.
// Devolve também o valor efetivamente gravado (pós-merge), pronto pra diffar.
func (s *EventStore) Upsert(ev model.Event) (prev *model.Event, stored model.Event) {
	sh := s.shardFor(ev.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	old := sh.events[ev.ID]
	if old != nil {
		c := old.Clone()
		prev = &c
		if !model.CanTransition(old.Status, ev.Status) {
			s.log.Warn("status regression ignored",
				zap.String("event_id", ev.ID),
				zap.String("from", string(old.Status)),
				zap.String("to", string(ev.Status)),
			)
			ev.Status = old.Status
		}
		if ev.Score == nil && old.Score != nil {
			sc := *old.Score
			ev.Score = &sc
		}
		if ev.SuspendedMarkets == nil && old.SuspendedMarkets != nil {
			ev.SuspendedMarkets = append([]string(nil), old.SuspendedMarkets...)
		}
	}
	keep := ev.Clone()
	sh.events[ev.ID] = &keep
	return prev, ev.Clone()
}

// List devolve cópias dos eventos que casam com o filtro, ordenadas por início
func (s *EventStore) List(f Filter) []model.Event {
	var out []model.Event
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, ev := range sh.events {
			if f.Sport != "" && ev.Sport != f.Sport {
				continue
			}
			if f.Status != "" && ev.Status != f.Status {
				continue
			}
			out = append(out, ev.Clone())
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Len devolve o total de eventos no cache
func (s *EventStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.events)
		sh.mu.RUnlock()
	}
	return n
}

// EvictFinishedBefore remove eventos encerrados cuja última atualização é
// anterior ao corte. Eventos encerrados há pouco ficam disponíveis para
// leituras de liquidação. Devolve quantos foram removidos.
func (s *EventStore) EvictFinishedBefore(cutoff time.Time) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, ev := range sh.events {
			if ev.Status == model.StatusFinished && ev.LastUpdated.Before(cutoff) {
				delete(sh.events, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.log.Info("evicted finished events", zap.Int("count", removed))
	}
	return removed
}
