package model

import "math"

// Nomes dos mercados suportados pelo modelo canônico
const (
	MarketMoneyline = "moneyline"
	MarketSpread    = "spread"
	MarketTotal     = "total"
)

// Moneyline guarda os preços decimais das duas pontas do mercado de vencedor
type Moneyline struct {
	Team1 float64 `json:"team1"`
	Team2 float64 `json:"team2"`
}

// Spread guarda o handicap e os preços decimais de cada lado
type Spread struct {
	Team1Points float64 `json:"team1Points"`
	Team1Odds   float64 `json:"team1Odds"`
	Team2Points float64 `json:"team2Points"`
	Team2Odds   float64 `json:"team2Odds"`
}

// Total guarda a linha de pontos e os preços decimais de over/under
type Total struct {
	Points    float64 `json:"points"`
	OverOdds  float64 `json:"overOdds"`
	UnderOdds float64 `json:"underOdds"`
}

// OddsSnapshot agrega os mercados conhecidos de um evento.
// Mercado ausente fica nil; mercado presente sempre tem as duas pontas.
type OddsSnapshot struct {
	Moneyline *Moneyline `json:"moneyline,omitempty"`
	Spread    *Spread    `json:"spread,omitempty"`
	Total     *Total     `json:"total,omitempty"`
}

// Clone devolve uma cópia profunda do snapshot
func (s OddsSnapshot) Clone() OddsSnapshot {
	out := OddsSnapshot{}
	if s.Moneyline != nil {
		m := *s.Moneyline
		out.Moneyline = &m
	}
	if s.Spread != nil {
		sp := *s.Spread
		out.Spread = &sp
	}
	if s.Total != nil {
		t := *s.Total
		out.Total = &t
	}
	return out
}

// Equal compara dois snapshots com tolerância para ruído de ponto flutuante.
// eps é o menor movimento de preço considerado significativo.
func (s OddsSnapshot) Equal(other OddsSnapshot, eps float64) bool {
	if (s.Moneyline == nil) != (other.Moneyline == nil) {
		return false
	}
	if s.Moneyline != nil {
		if !approx(s.Moneyline.Team1, other.Moneyline.Team1, eps) ||
			!approx(s.Moneyline.Team2, other.Moneyline.Team2, eps) {
			return false
		}
	}
	if (s.Spread == nil) != (other.Spread == nil) {
		return false
	}
	if s.Spread != nil {
		if !approx(s.Spread.Team1Points, other.Spread.Team1Points, eps) ||
			!approx(s.Spread.Team1Odds, other.Spread.Team1Odds, eps) ||
			!approx(s.Spread.Team2Points, other.Spread.Team2Points, eps) ||
			!approx(s.Spread.Team2Odds, other.Spread.Team2Odds, eps) {
			return false
		}
	}
	if (s.Total == nil) != (other.Total == nil) {
		return false
	}
	if s.Total != nil {
		if !approx(s.Total.Points, other.Total.Points, eps) ||
			!approx(s.Total.OverOdds, other.Total.OverOdds, eps) ||
			!approx(s.Total.UnderOdds, other.Total.UnderOdds, eps) {
			return false
		}
	}
	return true
}

func approx(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}
