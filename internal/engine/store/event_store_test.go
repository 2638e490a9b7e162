package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

func ev(id string, status model.Status) model.Event {
	return model.Event{
		ID:          id,
		Sport:       "soccer",
		Team1:       "Flamengo",
		Team2:       "Palmeiras",
		StartTime:   time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
		Status:      status,
		LastUpdated: time.Now().UTC(),
	}
}

func TestUpsertReturnsPrevious(t *testing.T) {
	s := NewEventStore(zap.NewNop())

	if prev, _ := s.Upsert(ev("oddsapi:1", model.StatusUpcoming)); prev != nil {
		t.Fatalf("first upsert prev = %+v, want nil", prev)
	}

	next := ev("oddsapi:1", model.StatusLive)
	prev, stored := s.Upsert(next)
	if prev == nil || prev.Status != model.StatusUpcoming {
		t.Fatalf("second upsert prev = %+v, want upcoming", prev)
	}
	if stored.Status != model.StatusLive {
		t.Fatalf("stored = %+v, want live", stored)
	}
	if got := s.Get("oddsapi:1"); got == nil || got.Status != model.StatusLive {
		t.Fatalf("get = %+v, want live", got)
	}
}

func TestUpsertStatusNeverRegresses(t *testing.T) {
	s := NewEventStore(zap.NewNop())
	s.Upsert(ev("oddsapi:1", model.StatusLive))

	// fornecedor atrasado tentando voltar pra upcoming
	s.Upsert(ev("oddsapi:1", model.StatusUpcoming))

	if got := s.Get("oddsapi:1"); got.Status != model.StatusLive {
		t.Errorf("status = %s, want live (no regression)", got.Status)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewEventStore(zap.NewNop())
	e := ev("oddsapi:1", model.StatusUpcoming)
	e.Odds.Moneyline = &model.Moneyline{Team1: 1.9, Team2: 2.1}
	s.Upsert(e)

	got := s.Get("oddsapi:1")
	got.Odds.Moneyline.Team1 = 9.9

	if s.Get("oddsapi:1").Odds.Moneyline.Team1 != 1.9 {
		t.Error("mutating the returned event leaked into the store")
	}
}

func TestListFilters(t *testing.T) {
	s := NewEventStore(zap.NewNop())
	a := ev("oddsapi:1", model.StatusLive)
	b := ev("oddsapi:2", model.StatusUpcoming)
	c := ev("oddsapi:3", model.StatusLive)
	c.Sport = "basketball"
	s.Upsert(a)
	s.Upsert(b)
	s.Upsert(c)

	if got := len(s.List(Filter{})); got != 3 {
		t.Errorf("List(all) = %d, want 3", got)
	}
	if got := len(s.List(Filter{Status: model.StatusLive})); got != 2 {
		t.Errorf("List(live) = %d, want 2", got)
	}
	if got := len(s.List(Filter{Sport: "soccer", Status: model.StatusLive})); got != 1 {
		t.Errorf("List(soccer live) = %d, want 1", got)
	}
}

func TestEvictFinishedBefore(t *testing.T) {
	s := NewEventStore(zap.NewNop())

	old := ev("oddsapi:1", model.StatusFinished)
	old.LastUpdated = time.Now().Add(-2 * time.Hour)
	recent := ev("oddsapi:2", model.StatusFinished)
	live := ev("oddsapi:3", model.StatusLive)
	live.LastUpdated = time.Now().Add(-3 * time.Hour)
	s.Upsert(old)
	s.Upsert(recent)
	s.Upsert(live)

	removed := s.EvictFinishedBefore(time.Now().Add(-time.Hour))
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if s.Get("oddsapi:1") != nil {
		t.Error("old finished event should be evicted")
	}
	if s.Get("oddsapi:2") == nil || s.Get("oddsapi:3") == nil {
		t.Error("recent finished and live events must stay")
	}
}

func TestConcurrentUpsertsDistinctIDs(t *testing.T) {
	s := NewEventStore(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("oddsapi:%d", n)
			for j := 0; j < 50; j++ {
				s.Upsert(ev(id, model.StatusUpcoming))
			}
		}(i)
	}
	wg.Wait()
	if got := s.Len(); got != 64 {
		t.Errorf("Len = %d, want 64", got)
	}
}

// Upsert herda placar e mercados suspensos quando o fornecedor não os manda
func TestUpsertInheritsScoreAndSuspensions(t *testing.T) {
	s := NewEventStore(zap.NewNop())

	first := ev("oddsapi:1", model.StatusLive)
	first.Score = &model.Score{Team1: 1, Team2: 0}
	first.SuspendedMarkets = []string{model.MarketTotal}
	s.Upsert(first)

	// refresh de odds não carrega placar nem suspensões
	_, stored := s.Upsert(ev("oddsapi:1", model.StatusLive))
	if stored.Score == nil || stored.Score.Team1 != 1 {
		t.Errorf("score not inherited: %+v", stored.Score)
	}
	if len(stored.SuspendedMarkets) != 1 || stored.SuspendedMarkets[0] != model.MarketTotal {
		t.Errorf("suspensions not inherited: %v", stored.SuspendedMarkets)
	}
}
