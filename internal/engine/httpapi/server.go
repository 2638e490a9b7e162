package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/budget"
	"github.com/radieske/live-odds-engine/internal/engine/scheduler"
	"github.com/radieske/live-odds-engine/internal/engine/store"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// Engine é a visão que a API tem do scheduler
type Engine interface {
	Running() bool
	UsingMock() bool
	Sports() []model.Sport
	RefreshNow(ctx context.Context, sport string, force bool) (int, error)
}

// API expõe os endpoints REST de consulta do motor de odds
type API struct {
	Log       *zap.Logger
	Store     *store.EventStore
	Tracker   *budget.Tracker
	Engine    Engine
	WSHandler http.HandlerFunc // handler do hub WebSocket, montado em /ws
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(withCORS)
	r.Get("/sports", a.listSports)         // Modalidades conhecidas
	r.Get("/events", a.listEvents)         // Eventos normalizados (?sport=&status=)
	r.Get("/live", a.listLive)             // Subconjunto ao vivo
	r.Get("/status", a.status)             // Estado do motor
	r.Post("/refresh", a.refresh)          // Ciclo de poll fora de hora
	r.Get("/bookmakers", a.listBookmakers) // Fornecedores conhecidos
	if a.WSHandler != nil {
		r.Get("/ws", a.WSHandler)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (a *API) listSports(w http.ResponseWriter, r *http.Request) {
	sports := a.Engine.Sports()
	if sports == nil {
		sports = []model.Sport{}
	}
	writeJSON(w, http.StatusOK, sports)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	f := store.Filter{
		Sport:  r.URL.Query().Get("sport"),
		Status: model.Status(r.URL.Query().Get("status")),
	}
	evs := a.Store.List(f)
	if evs == nil {
		evs = []model.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (a *API) listLive(w http.ResponseWriter, r *http.Request) {
	evs := a.Store.List(store.Filter{Status: model.StatusLive})
	if evs == nil {
		evs = []model.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

// statusResponse resume o estado do motor pro consumidor externo.
// usingMock deixa o modo degradado observável, nunca indistinguível de dado real.
type statusResponse struct {
	IsRunning    bool                         `json:"isRunning"`
	ActiveEvents int                          `json:"activeEvents"`
	RateLimits   map[string]budget.RateBudget `json:"rateLimits"`
	UsingMock    bool                         `json:"usingMock"`
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	active := 0
	for _, ev := range a.Store.List(store.Filter{}) {
		if ev.Status != model.StatusFinished {
			active++
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		IsRunning:    a.Engine.Running(),
		ActiveEvents: active,
		RateLimits:   a.Tracker.Snapshot(),
		UsingMock:    a.Engine.UsingMock(),
	})
}

type refreshRequest struct {
	Sport string `json:"sport"`
	Force bool   `json:"force"`
}

// refresh dispara um ciclo fora de hora; respeita o tracker de cota
func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.Body != nil {
		// corpo vazio é aceito: refresh geral
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	n, err := a.Engine.RefreshNow(r.Context(), req.Sport, req.Force)
	if err != nil {
		if errors.Is(err, scheduler.ErrRateLimited) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate budget exhausted"})
			return
		}
		a.Log.Warn("manual refresh failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"refreshed": n})
}

// listBookmakers agrega os fornecedores distintos vistos nos eventos em cache
func (a *API) listBookmakers(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]model.ProviderRef)
	for _, ev := range a.Store.List(store.Filter{}) {
		for _, bm := range ev.Bookmakers {
			seen[bm.Key] = bm
		}
	}
	out := make([]model.ProviderRef, 0, len(seen))
	for _, bm := range seen {
		out = append(out, bm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	writeJSON(w, http.StatusOK, out)
}
