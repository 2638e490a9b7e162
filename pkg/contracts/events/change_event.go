package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// ChangeType enumera os tipos de mudança emitidos pelo motor de odds.
// Os valores são os mesmos usados no canal realtime e no tópico Kafka.
type ChangeType string

const (
	TypeInitialData     ChangeType = "initial_data"
	TypeOddsUpdate      ChangeType = "odds_update"
	TypeScoreUpdate     ChangeType = "score_update"
	TypeNewEvent        ChangeType = "new_events"
	TypeEventStarted    ChangeType = "event_started"
	TypeEventEnded      ChangeType = "event_ended"
	TypeMarketSuspended ChangeType = "market_suspended"
	TypeMarketReopened  ChangeType = "market_reopened"
)

// Direction indica o sentido de um movimento de preço
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// LegDelta descreve o movimento de uma ponta de mercado
type LegDelta struct {
	Old       float64   `json:"old"`
	New       float64   `json:"new"`
	Direction Direction `json:"direction"`
}

// ChangeEvent é a união etiquetada publicada pelo motor. Imutável após construção;
// os campos opcionais são preenchidos conforme o Type.
type ChangeEvent struct {
	ID      string     `json:"id"`
	Type    ChangeType `json:"type"`
	EventID string     `json:"eventId"`
	Sport   string     `json:"sport"`

	Event  *model.Event        `json:"event,omitempty"`  // new_events, initial_data
	Odds   *model.OddsSnapshot `json:"odds,omitempty"`   // odds_update
	Delta  map[string]LegDelta `json:"delta,omitempty"`  // odds_update: "moneyline.team1" -> movimento
	Score  *model.Score        `json:"score,omitempty"`  // score_update
	Status model.Status        `json:"status,omitempty"` // score_update, event_started
	Market string              `json:"market,omitempty"` // market_suspended, market_reopened

	Ts time.Time `json:"ts"`
}

// New monta um ChangeEvent com id e timestamp preenchidos
func New(t ChangeType, eventID, sport string) ChangeEvent {
	return ChangeEvent{
		ID:      uuid.NewString(),
		Type:    t,
		EventID: eventID,
		Sport:   sport,
		Ts:      time.Now().UTC(),
	}
}
