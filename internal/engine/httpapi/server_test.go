package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/budget"
	"github.com/radieske/live-odds-engine/internal/engine/scheduler"
	"github.com/radieske/live-odds-engine/internal/engine/store"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// fakeEngine roteiriza o scheduler pros testes da API
type fakeEngine struct {
	running    bool
	usingMock  bool
	sports     []model.Sport
	refreshN   int
	refreshErr error
}

func (f *fakeEngine) Running() bool         { return f.running }
func (f *fakeEngine) UsingMock() bool       { return f.usingMock }
func (f *fakeEngine) Sports() []model.Sport { return f.sports }
func (f *fakeEngine) RefreshNow(context.Context, string, bool) (int, error) {
	return f.refreshN, f.refreshErr
}

func newTestAPI(eng *fakeEngine) (*API, *store.EventStore, *budget.Tracker) {
	log := zap.NewNop()
	st := store.NewEventStore(log)
	tr := budget.NewTracker(log)
	return &API{Log: log, Store: st, Tracker: tr, Engine: eng}, st, tr
}

func seed(st *store.EventStore) {
	st.Upsert(model.Event{
		ID: "oddsapi:1", Sport: "soccer", Team1: "Flamengo", Team2: "Palmeiras",
		StartTime: time.Now().Add(-time.Hour), Status: model.StatusLive,
		Bookmakers: []model.ProviderRef{{Key: "betx", Title: "BetX", Active: true}},
	})
	st.Upsert(model.Event{
		ID: "oddsapi:2", Sport: "basketball", Team1: "Minas", Team2: "Franca",
		StartTime: time.Now().Add(time.Hour), Status: model.StatusUpcoming,
		Bookmakers: []model.ProviderRef{{Key: "bety", Title: "BetY", Active: true}},
	})
	st.Upsert(model.Event{
		ID: "oddsapi:3", Sport: "soccer", Team1: "Santos", Team2: "Grêmio",
		StartTime: time.Now().Add(-3 * time.Hour), Status: model.StatusFinished,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestListEventsFiltered(t *testing.T) {
	api, st, _ := newTestAPI(&fakeEngine{running: true})
	seed(st)
	h := api.Router()

	req := httptest.NewRequest(http.MethodGet, "/events?sport=soccer&status=live", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var evs []model.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &evs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(evs) != 1 || evs[0].ID != "oddsapi:1" {
		t.Errorf("events = %+v, want only oddsapi:1", evs)
	}
}

func TestListLive(t *testing.T) {
	api, st, _ := newTestAPI(&fakeEngine{})
	seed(st)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	var evs []model.Event
	_ = json.Unmarshal(rec.Body.Bytes(), &evs)
	if len(evs) != 1 || evs[0].Status != model.StatusLive {
		t.Errorf("live = %+v", evs)
	}
}

func TestStatusReportsRateLimitsAndMock(t *testing.T) {
	api, st, tr := newTestAPI(&fakeEngine{running: true, usingMock: true})
	seed(st)
	tr.Register("oddsapi", 0, time.Now().Add(time.Hour))

	rec, out := doJSON(t, api.Router(), http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if out["isRunning"] != true || out["usingMock"] != true {
		t.Errorf("status = %+v", out)
	}
	// eventos finished não contam como ativos
	if out["activeEvents"].(float64) != 2 {
		t.Errorf("activeEvents = %v, want 2", out["activeEvents"])
	}
	rl := out["rateLimits"].(map[string]any)["oddsapi"].(map[string]any)
	if rl["remaining"].(float64) != 0 {
		t.Errorf("rateLimits.oddsapi.remaining = %v, want 0", rl["remaining"])
	}
}

func TestRefreshOK(t *testing.T) {
	api, _, _ := newTestAPI(&fakeEngine{refreshN: 7})
	rec, out := doJSON(t, api.Router(), http.MethodPost, "/refresh", `{"sport":"soccer"}`)
	if rec.Code != http.StatusOK || out["refreshed"].(float64) != 7 {
		t.Errorf("code=%d body=%+v", rec.Code, out)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	api, _, _ := newTestAPI(&fakeEngine{refreshErr: scheduler.ErrRateLimited})
	rec, _ := doJSON(t, api.Router(), http.MethodPost, "/refresh", `{}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("code = %d, want 429", rec.Code)
	}
}

func TestListBookmakers(t *testing.T) {
	api, st, _ := newTestAPI(&fakeEngine{})
	seed(st)

	req := httptest.NewRequest(http.MethodGet, "/bookmakers", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	var bms []model.ProviderRef
	_ = json.Unmarshal(rec.Body.Bytes(), &bms)
	if len(bms) != 2 || bms[0].Key != "betx" || bms[1].Key != "bety" {
		t.Errorf("bookmakers = %+v", bms)
	}
}

func TestListSports(t *testing.T) {
	api, _, _ := newTestAPI(&fakeEngine{sports: []model.Sport{{ID: "soccer", Name: "Futebol", Active: true}}})
	req := httptest.NewRequest(http.MethodGet, "/sports", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	var sports []model.Sport
	_ = json.Unmarshal(rec.Body.Bytes(), &sports)
	if len(sports) != 1 || sports[0].ID != "soccer" {
		t.Errorf("sports = %+v", sports)
	}
}
