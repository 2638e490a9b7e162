package detector

import (
	"math"

	"github.com/radieske/live-odds-engine/pkg/contracts/events"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// DefaultEpsilon é o menor movimento de preço decimal considerado significativo.
// Movimentos abaixo de meio centavo são ruído de ponto flutuante e não emitem evento.
const DefaultEpsilon = 0.005

// Detector compara snapshots consecutivos de um evento e classifica as mudanças
type Detector struct {
	eps float64
}

// New cria um detector; eps <= 0 usa DefaultEpsilon
func New(eps float64) *Detector {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return &Detector{eps: eps}
}

// Diff é pura: mesmos inputs produzem sempre a mesma lista, na ordem
// New/Ended -> Score -> Odds -> suspensão de mercados.
func (d *Detector) Diff(prev *model.Event, next model.Event) []events.ChangeEvent {
	if prev == nil {
		ce := events.New(events.TypeNewEvent, next.ID, next.Sport)
		c := next.Clone()
		ce.Event = &c
		return []events.ChangeEvent{ce}
	}

	var out []events.ChangeEvent

	if prev.Status != model.StatusFinished && next.Status == model.StatusFinished {
		out = append(out, events.New(events.TypeEventEnded, next.ID, next.Sport))
	}
	if prev.Status != model.StatusLive && next.Status == model.StatusLive {
		ce := events.New(events.TypeEventStarted, next.ID, next.Sport)
		ce.Status = next.Status
		out = append(out, ce)
	}

	if sc := d.diffScore(prev, next); sc != nil {
		out = append(out, *sc)
	}
	if od := d.diffOdds(prev, next); od != nil {
		out = append(out, *od)
	}
	out = append(out, d.diffSuspensions(prev, next)...)
	return out
}

// diffScore emite score_update quando o placar muda com os dois snapshots ao vivo
func (d *Detector) diffScore(prev *model.Event, next model.Event) *events.ChangeEvent {
	if prev.Status != model.StatusLive || next.Status != model.StatusLive {
		return nil
	}
	if next.Score == nil {
		return nil
	}
	if prev.Score != nil && *prev.Score == *next.Score {
		return nil
	}
	ce := events.New(events.TypeScoreUpdate, next.ID, next.Sport)
	s := *next.Score
	ce.Score = &s
	ce.Status = next.Status
	return &ce
}

// diffOdds compara mercado a mercado e monta o mapa de deltas por ponta.
// Mercado que aparece pela primeira vez entra com Old=0. Sem nenhuma ponta
// alterada além do epsilon, nada é emitido.
func (d *Detector) diffOdds(prev *model.Event, next model.Event) *events.ChangeEvent {
	delta := make(map[string]events.LegDelta)
	leg := func(key string, old, new float64) {
		if math.Abs(new-old) < d.eps {
			return
		}
		dir := events.DirectionUp
		if new < old {
			dir = events.DirectionDown
		}
		delta[key] = events.LegDelta{Old: old, New: new, Direction: dir}
	}

	if m := next.Odds.Moneyline; m != nil {
		var old model.Moneyline
		if prev.Odds.Moneyline != nil {
			old = *prev.Odds.Moneyline
		}
		leg("moneyline.team1", old.Team1, m.Team1)
		leg("moneyline.team2", old.Team2, m.Team2)
	}
	if sp := next.Odds.Spread; sp != nil {
		var old model.Spread
		if prev.Odds.Spread != nil {
			old = *prev.Odds.Spread
		}
		leg("spread.team1Points", old.Team1Points, sp.Team1Points)
		leg("spread.team1Odds", old.Team1Odds, sp.Team1Odds)
		leg("spread.team2Points", old.Team2Points, sp.Team2Points)
		leg("spread.team2Odds", old.Team2Odds, sp.Team2Odds)
	}
	if tt := next.Odds.Total; tt != nil {
		var old model.Total
		if prev.Odds.Total != nil {
			old = *prev.Odds.Total
		}
		leg("total.points", old.Points, tt.Points)
		leg("total.overOdds", old.OverOdds, tt.OverOdds)
		leg("total.underOdds", old.UnderOdds, tt.UnderOdds)
	}

	if len(delta) == 0 {
		return nil
	}
	ce := events.New(events.TypeOddsUpdate, next.ID, next.Sport)
	o := next.Odds.Clone()
	ce.Odds = &o
	ce.Delta = delta
	return &ce
}

// diffSuspensions detecta entradas e saídas do conjunto de mercados suspensos
func (d *Detector) diffSuspensions(prev *model.Event, next model.Event) []events.ChangeEvent {
	var out []events.ChangeEvent
	// ordem estável: moneyline, spread, total
	for _, market := range []string{model.MarketMoneyline, model.MarketSpread, model.MarketTotal} {
		was := prev.IsMarketSuspended(market)
		is := next.IsMarketSuspended(market)
		if was == is {
			continue
		}
		t := events.TypeMarketSuspended
		if was && !is {
			t = events.TypeMarketReopened
		}
		ce := events.New(t, next.ID, next.Sport)
		ce.Market = market
		out = append(out, ce)
	}
	return out
}
