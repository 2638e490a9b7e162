package pubsub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/pkg/contracts/events"
)

// TopicAll recebe todos os ChangeEvents
const TopicAll = "*"

// TopicSport monta o tópico de uma modalidade
func TopicSport(sport string) string { return "sport:" + sport }

// TopicEvent monta o tópico de um evento específico
func TopicEvent(eventID string) string { return "event:" + eventID }

// DefaultBuffer é o tamanho da fila de cada assinante
const DefaultBuffer = 64

var (
	publishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_changes_published_total",
		Help: "ChangeEvents publicados, por tipo",
	}, []string{"type"})
	droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_changes_dropped_total",
		Help: "Entregas descartadas por assinante lento",
	})
	subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_subscribers",
		Help: "Assinantes ativos no broker",
	})
)

func init() {
	prometheus.MustRegister(publishedTotal, droppedTotal, subscribersGauge)
}

// Subscriber é a alça de um consumidor: uma fila FIFO limitada.
// O consumidor drena C; a ordem de emissão por evento é preservada.
type Subscriber struct {
	ID     string
	C      chan events.ChangeEvent
	topics []string

	// protege C contra publish concorrente com o fechamento
	mu     sync.RWMutex
	closed bool
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.C)
	}
}

// offer enfileira sem bloquear; com a fila cheia descarta o mais antigo.
// Devolve true se algo foi descartado.
func (s *Subscriber) offer(ev events.ChangeEvent) (dropped bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.C <- ev:
		return false
	default:
	}
	// abre espaço derrubando o mais antigo
	select {
	case <-s.C:
		dropped = true
	default:
	}
	select {
	case s.C <- ev:
	default:
		dropped = true
	}
	return dropped
}

// Broker faz o fan-out de ChangeEvents por tópico sem bloquear a ingestão.
// Assinante lento não atrasa os demais: com a fila cheia, o mais antigo
// é descartado com warning (entrega best-effort, não garantida).
type Broker struct {
	log *zap.Logger

	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	closed bool
}

// NewBroker cria o broker vazio
func NewBroker(log *zap.Logger) *Broker {
	return &Broker{
		log:    log,
		topics: make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registra um assinante nos tópicos dados.
// buffer <= 0 usa DefaultBuffer.
func (b *Broker) Subscribe(buffer int, topics ...string) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscriber{
		ID:     uuid.NewString(),
		C:      make(chan events.ChangeEvent, buffer),
		topics: topics,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	for _, t := range topics {
		if _, ok := b.topics[t]; !ok {
			b.topics[t] = make(map[*Subscriber]struct{})
		}
		b.topics[t][sub] = struct{}{}
	}
	subscribersGauge.Inc()
	return sub
}

// Unsubscribe remove o assinante de todos os seus tópicos e fecha a fila
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	removed := false
	for _, t := range sub.topics {
		if set, ok := b.topics[t]; ok {
			if _, in := set[sub]; in {
				delete(set, sub)
				removed = true
			}
			if len(set) == 0 {
				delete(b.topics, t)
			}
		}
	}
	b.mu.Unlock()

	if removed {
		subscribersGauge.Dec()
	}
	sub.close()
}

// Publish resolve os tópicos do evento ("*", "sport:<x>", "event:<id>")
// e entrega a cada assinante de forma não bloqueante.
func (b *Broker) Publish(ev events.ChangeEvent) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	var targets []*Subscriber
	seen := make(map[*Subscriber]struct{})
	for _, t := range []string{TopicAll, TopicSport(ev.Sport), TopicEvent(ev.EventID)} {
		for sub := range b.topics[t] {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	publishedTotal.WithLabelValues(string(ev.Type)).Inc()

	for _, sub := range targets {
		if sub.offer(ev) {
			droppedTotal.Inc()
			b.log.Warn("subscriber queue full, dropping oldest",
				zap.String("subscriber", sub.ID),
				zap.String("type", string(ev.Type)),
			)
		}
	}
}

// Close encerra o broker e fecha a fila de todos os assinantes
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	seen := make(map[*Subscriber]struct{})
	for _, set := range b.topics {
		for sub := range set {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			sub.close()
		}
	}
	b.topics = make(map[string]map[*Subscriber]struct{})
	subscribersGauge.Set(0)
}
