package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/pubsub"
	"github.com/radieske/live-odds-engine/internal/engine/store"
	"github.com/radieske/live-odds-engine/pkg/contracts/events"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

var wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "engine_ws_connections",
	Help: "Clientes WebSocket conectados",
})

func init() {
	prometheus.MustRegister(wsConnections)
}

// ClientMsg é a mensagem recebida do cliente
// Type: subscribe | unsubscribe | ping
// Topic: "*", "sport:<x>" ou "event:<id>" (obrigatório em subscribe/unsubscribe)
type ClientMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// initialData é o snapshot completo enviado na inscrição
type initialData struct {
	Type   events.ChangeType `json:"type"`
	Topic  string            `json:"topic"`
	Events []model.Event     `json:"events"`
}

// client é uma conexão WebSocket com sua fila de envio.
// O writer dedicado drena a fila; enfileirar nunca bloqueia o hub.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	topics map[string]struct{}
}

func (c *client) subscribed(topics ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if _, ok := c.topics[t]; ok {
			return true
		}
	}
	return false
}

// Hub gerencia conexões WebSocket e roteia ChangeEvents por tópico.
// É um consumidor comum do broker: assina "*" e filtra pelos tópicos
// de cada cliente.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	broker   *pubsub.Broker
	store    *store.EventStore

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub cria o hub com política de origem customizada (CORS)
func NewHub(log *zap.Logger, broker *pubsub.Broker, st *store.EventStore, allowOrigin func(r *http.Request) bool) *Hub {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: allowOrigin},
		broker:   broker,
		store:    st,
		clients:  make(map[string]*client),
	}
}

// Run drena o broker e repassa cada ChangeEvent aos clientes inscritos
// em algum dos tópicos resolvidos. Bloqueia até o contexto encerrar.
func (h *Hub) Run(ctx context.Context) {
	sub := h.broker.Subscribe(256, pubsub.TopicAll)
	defer h.broker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			h.route(ev)
		}
	}
}

func (h *Hub) route(ev events.ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal change event", zap.Error(err))
		return
	}
	topics := []string{pubsub.TopicAll, pubsub.TopicSport(ev.Sport), pubsub.TopicEvent(ev.EventID)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.subscribed(topics...) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// cliente lento não atrasa os demais; a mensagem é descartada
			h.log.Warn("ws send queue full, dropping", zap.String("client_id", c.id))
		}
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, 64),
		topics: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	wsConnections.Inc()
	h.log.Info("ws client connected", zap.String("client_id", c.id))

	// writer dedicado da conexão
	go func() {
		for msg := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	close(c.send)
	_ = conn.Close()
	wsConnections.Dec()
	h.log.Info("ws client disconnected", zap.String("client_id", c.id))
}

func (h *Hub) readLoop(c *client) {
	for {
		var msg ClientMsg
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.Topic == "" {
				continue
			}
			c.mu.Lock()
			c.topics[msg.Topic] = struct{}{}
			c.mu.Unlock()
			h.sendInitialData(c, msg.Topic)
		case "unsubscribe":
			c.mu.Lock()
			delete(c.topics, msg.Topic)
			c.mu.Unlock()
		case "ping":
			if b, err := json.Marshal(map[string]string{"type": "pong"}); err == nil {
				select {
				case c.send <- b:
				default:
				}
			}
		}
	}
}

// sendInitialData manda o snapshot corrente do cache pro tópico recém-assinado
func (h *Hub) sendInitialData(c *client, topic string) {
	var evs []model.Event
	switch {
	case topic == pubsub.TopicAll:
		evs = h.store.List(store.Filter{})
	case strings.HasPrefix(topic, "sport:"):
		evs = h.store.List(store.Filter{Sport: strings.TrimPrefix(topic, "sport:")})
	case strings.HasPrefix(topic, "event:"):
		if ev := h.store.Get(strings.TrimPrefix(topic, "event:")); ev != nil {
			evs = []model.Event{*ev}
		}
	}

	b, err := json.Marshal(initialData{Type: events.TypeInitialData, Topic: topic, Events: evs})
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
		h.log.Warn("ws send queue full on initial_data", zap.String("client_id", c.id))
	}
}
