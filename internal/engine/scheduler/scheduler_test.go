package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/budget"
	"github.com/radieske/live-odds-engine/internal/engine/detector"
	"github.com/radieske/live-odds-engine/internal/engine/provider"
	"github.com/radieske/live-odds-engine/internal/engine/pubsub"
	"github.com/radieske/live-odds-engine/internal/engine/store"
	"github.com/radieske/live-odds-engine/pkg/contracts/events"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// fakeAdapter é um fornecedor roteirizado pros testes
type fakeAdapter struct {
	key string

	mu     sync.Mutex
	calls  int
	events []model.Event
	scores []provider.ScoreRecord
	quota  *budget.Quota
	err    error
}

func (f *fakeAdapter) Key() string { return f.key }

func (f *fakeAdapter) FetchSports(context.Context) ([]model.Sport, *budget.Quota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []model.Sport{{ID: "soccer", Name: "Futebol", Active: true}}, f.quota, f.err
}

func (f *fakeAdapter) FetchEvents(context.Context, provider.Filter) ([]model.Event, *budget.Quota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.quota, f.err
	}
	out := make([]model.Event, len(f.events))
	for i := range f.events {
		out[i] = f.events[i].Clone()
	}
	return out, f.quota, nil
}

func (f *fakeAdapter) FetchScores(context.Context) ([]provider.ScoreRecord, *budget.Quota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]provider.ScoreRecord(nil), f.scores...), f.quota, f.err
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testEvent(id string) model.Event {
	return model.Event{
		ID:        id,
		Sport:     "soccer",
		Team1:     "Flamengo",
		Team2:     "Palmeiras",
		StartTime: time.Now().Add(-10 * time.Minute).UTC(),
		Status:    model.StatusLive,
		Odds: model.OddsSnapshot{
			Moneyline: &model.Moneyline{Team1: 1.90, Team2: 2.10},
		},
		LastUpdated: time.Now().UTC(),
	}
}

func newTestScheduler(primary provider.Adapter) (*Scheduler, *pubsub.Broker, *budget.Tracker, *store.EventStore) {
	log := zap.NewNop()
	tr := budget.NewTracker(log)
	st := store.NewEventStore(log)
	br := pubsub.NewBroker(log)
	cfg := DefaultConfig()
	cfg.CallTimeout = time.Second
	s := New(cfg, log, primary, provider.NewMockAdapter(), tr, st, detector.New(0), br)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, br, tr, st
}

func drainByType(sub *pubsub.Subscriber) map[events.ChangeType]int {
	out := make(map[events.ChangeType]int)
	for {
		select {
		case ev := <-sub.C:
			out[ev.Type]++
		default:
			return out
		}
	}
}

// Dois polls com odds idênticas byte a byte: zero ChangeEvents no segundo
func TestIdenticalPollsEmitNothing(t *testing.T) {
	fa := &fakeAdapter{key: "fake", events: []model.Event{testEvent("fake:1")}}
	s, br, _, _ := newTestScheduler(fa)
	defer br.Close()

	sub := br.Subscribe(64, pubsub.TopicAll)

	s.pollOdds(context.Background())
	first := drainByType(sub)
	if first[events.TypeNewEvent] != 1 {
		t.Fatalf("first poll emitted %+v, want one new_events", first)
	}

	s.pollOdds(context.Background())
	second := drainByType(sub)
	if len(second) != 0 {
		t.Errorf("identical second poll emitted %+v, want nothing", second)
	}
}

func TestOddsMoveEmitsUpdate(t *testing.T) {
	fa := &fakeAdapter{key: "fake", events: []model.Event{testEvent("fake:1")}}
	s, br, _, _ := newTestScheduler(fa)
	defer br.Close()

	sub := br.Subscribe(64, pubsub.TopicAll)
	s.pollOdds(context.Background())
	drainByType(sub)

	fa.mu.Lock()
	fa.events[0].Odds.Moneyline.Team1 = 2.20
	fa.mu.Unlock()

	s.pollOdds(context.Background())
	got := drainByType(sub)
	if got[events.TypeOddsUpdate] != 1 {
		t.Errorf("emitted %+v, want one odds_update", got)
	}
}

// Cota esgotada com reset no futuro: o poll nem chama o fornecedor
func TestBudgetExhaustedSkipsPoll(t *testing.T) {
	fa := &fakeAdapter{key: "fake", events: []model.Event{testEvent("fake:1")}}
	s, br, tr, _ := newTestScheduler(fa)
	defer br.Close()

	tr.Register("fake", 0, time.Now().Add(time.Hour))

	s.pollOdds(context.Background())
	if fa.callCount() != 0 {
		t.Errorf("adapter called %d times with exhausted budget, want 0", fa.callCount())
	}

	// e o snapshot do status continua reportando zero
	if got := tr.Snapshot()["fake"].Remaining; got != 0 {
		t.Errorf("remaining = %d, want 0 unchanged", got)
	}
}

// Depois de N falhas consecutivas o scheduler cai pro mock, sem duplicar
// new_events de ids já em cache.
func TestFailoverToMock(t *testing.T) {
	fa := &fakeAdapter{key: "fake", err: &provider.ProviderError{Provider: "fake", Retryable: false, Err: errors.New("down")}}
	s, br, _, _ := newTestScheduler(fa)
	defer br.Close()

	if s.UsingMock() {
		t.Fatal("should start on the primary provider")
	}

	for i := 0; i < s.cfg.FailoverThreshold; i++ {
		s.pollOdds(context.Background())
	}
	if !s.UsingMock() {
		t.Fatal("expected failover to mock after consecutive failures")
	}

	sub := br.Subscribe(256, pubsub.TopicAll)
	s.pollOdds(context.Background())
	first := drainByType(sub)
	if first[events.TypeNewEvent] == 0 {
		t.Fatal("mock events should appear as new_events on first mock poll")
	}

	s.pollOdds(context.Background())
	second := drainByType(sub)
	if second[events.TypeNewEvent] != 0 {
		t.Errorf("second mock poll duplicated %d new_events", second[events.TypeNewEvent])
	}
}

func TestRefreshNowRespectsBudget(t *testing.T) {
	fa := &fakeAdapter{key: "fake", events: []model.Event{testEvent("fake:1")}}
	s, br, tr, _ := newTestScheduler(fa)
	defer br.Close()

	tr.Register("fake", 0, time.Now().Add(time.Hour))

	if _, err := s.RefreshNow(context.Background(), "", false); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	tr.Register("fake", 10, time.Now().Add(time.Hour))
	n, err := s.RefreshNow(context.Background(), "soccer", false)
	if err != nil || n != 1 {
		t.Fatalf("RefreshNow = (%d, %v), want (1, nil)", n, err)
	}
}

func TestScoresFlow(t *testing.T) {
	fa := &fakeAdapter{key: "fake", events: []model.Event{testEvent("fake:1")}}
	s, br, _, st := newTestScheduler(fa)
	defer br.Close()

	s.pollOdds(context.Background())

	fa.mu.Lock()
	fa.scores = []provider.ScoreRecord{{EventID: "fake:1", Sport: "soccer", Score: model.Score{Team1: 1}}}
	fa.mu.Unlock()

	sub := br.Subscribe(64, pubsub.TopicEvent("fake:1"))
	s.pollScores(context.Background())

	got := drainByType(sub)
	if got[events.TypeScoreUpdate] != 1 {
		t.Fatalf("emitted %+v, want one score_update", got)
	}
	if ev := st.Get("fake:1"); ev.Score == nil || ev.Score.Team1 != 1 {
		t.Errorf("cached score = %+v", ev.Score)
	}

	// placar encerrando o jogo emite event_ended e o status vira finished
	fa.mu.Lock()
	fa.scores[0].Completed = true
	fa.scores[0].Score = model.Score{Team1: 2}
	fa.mu.Unlock()

	s.pollScores(context.Background())
	got = drainByType(sub)
	if got[events.TypeEventEnded] != 1 {
		t.Errorf("emitted %+v, want event_ended", got)
	}
	if ev := st.Get("fake:1"); ev.Status != model.StatusFinished {
		t.Errorf("status = %s, want finished", ev.Status)
	}
}

func TestStartStop(t *testing.T) {
	fa := &fakeAdapter{key: "fake", events: []model.Event{testEvent("fake:1")}}
	log := zap.NewNop()
	tr := budget.NewTracker(log)
	st := store.NewEventStore(log)
	br := pubsub.NewBroker(log)
	defer br.Close()

	cfg := DefaultConfig()
	cfg.OddsInterval = 20 * time.Millisecond
	cfg.ScoresInterval = 20 * time.Millisecond
	cfg.DiscoveryInterval = 20 * time.Millisecond
	cfg.CallTimeout = time.Second

	s := New(cfg, log, fa, provider.NewMockAdapter(), tr, st, detector.New(0), br)
	s.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	if !s.Running() {
		t.Error("Running() = false while started")
	}
	if st.Len() == 0 {
		t.Error("store empty after polling window")
	}

	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
}
