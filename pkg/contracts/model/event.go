package model

import "time"

// Status representa o estado de um evento esportivo no ciclo de vida
// upcoming -> starting_soon -> live -> finished (nunca retrocede)
type Status string

const (
	StatusUpcoming     Status = "upcoming"
	StatusStartingSoon Status = "starting_soon"
	StatusLive         Status = "live"
	StatusFinished     Status = "finished"
)

// rank define a ordem monotônica dos status
func rank(s Status) int {
	switch s {
	case StatusUpcoming:
		return 0
	case StatusStartingSoon:
		return 1
	case StatusLive:
		return 2
	case StatusFinished:
		return 3
	}
	return -1
}

// CanTransition informa se a mudança de status respeita a ordem do ciclo de vida
func CanTransition(from, to Status) bool {
	return rank(to) >= rank(from)
}

// ComputeStatus deriva o status do evento a partir do horário de início,
// do sinal de término do fornecedor e do instante atual.
// preGameWindow define quanto tempo antes do início o evento entra em starting_soon.
func ComputeStatus(start time.Time, finished bool, now time.Time, preGameWindow time.Duration) Status {
	if finished {
		return StatusFinished
	}
	if !now.Before(start) {
		return StatusLive
	}
	if start.Sub(now) <= preGameWindow {
		return StatusStartingSoon
	}
	return StatusUpcoming
}

// ProviderRef identifica um bookmaker/fornecedor que cotou o evento
type ProviderRef struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Sport representa uma modalidade esportiva conhecida pelos fornecedores
type Sport struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Score representa o placar corrente de um evento
type Score struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// Event é o modelo canônico de um evento esportivo com suas odds normalizadas.
// O ID é qualificado por fornecedor (ex: "oddsapi:abc123") e é único no cache.
type Event struct {
	ID               string        `json:"id"`
	Sport            string        `json:"sport"`
	League           string        `json:"league"`
	Team1            string        `json:"team1"`
	Team2            string        `json:"team2"`
	StartTime        time.Time     `json:"startTime"`
	Status           Status        `json:"status"`
	Score            *Score        `json:"score,omitempty"`
	Odds             OddsSnapshot  `json:"odds"`
	SuspendedMarkets []string      `json:"suspendedMarkets,omitempty"`
	Bookmakers       []ProviderRef `json:"bookmakers,omitempty"`
	LastUpdated      time.Time     `json:"lastUpdated"`
}

// IsMarketSuspended informa se o mercado consta na lista de suspensos
func (e *Event) IsMarketSuspended(market string) bool {
	for _, m := range e.SuspendedMarkets {
		if m == market {
			return true
		}
	}
	return false
}

// Clone devolve uma cópia profunda do evento, segura para publicar fora do cache
func (e *Event) Clone() Event {
	out := *e
	if e.Score != nil {
		s := *e.Score
		out.Score = &s
	}
	out.Odds = e.Odds.Clone()
	if e.SuspendedMarkets != nil {
		out.SuspendedMarkets = append([]string(nil), e.SuspendedMarkets...)
	}
	if e.Bookmakers != nil {
		out.Bookmakers = append([]ProviderRef(nil), e.Bookmakers...)
	}
	return out
}
