package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/budget"
	"github.com/radieske/live-odds-engine/internal/engine/odds"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// OddsAPIAdapter consome uma API de odds no formato The Odds API e normaliza
// os payloads pro modelo canônico. Todas as esquisitices do fornecedor
// (preços americanos, mercados h2h/spreads/totals, headers de cota) ficam aqui.
type OddsAPIAdapter struct {
	key     string
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger

	preGameWindow time.Duration
}

// NewOddsAPIAdapter cria o adapter HTTP do fornecedor principal
func NewOddsAPIAdapter(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *OddsAPIAdapter {
	return &OddsAPIAdapter{
		key:           "oddsapi",
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		apiKey:        apiKey,
		client:        &http.Client{Timeout: timeout},
		log:           log,
		preGameWindow: 30 * time.Minute,
	}
}

func (a *OddsAPIAdapter) Key() string { return a.key }

// ===== payloads crus do fornecedor =====

type rawSport struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

type rawOutcome struct {
	Name  string   `json:"name"`
	Price int      `json:"price"` // formato americano
	Point *float64 `json:"point,omitempty"`
}

type rawMarket struct {
	Key      string       `json:"key"` // h2h | spreads | totals
	Outcomes []rawOutcome `json:"outcomes"`
}

type rawBookmaker struct {
	Key     string      `json:"key"`
	Title   string      `json:"title"`
	Markets []rawMarket `json:"markets"`
}

type rawEvent struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	SportTitle   string         `json:"sport_title"`
	CommenceTime time.Time      `json:"commence_time"`
	Completed    bool           `json:"completed"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []rawBookmaker `json:"bookmakers"`
}

type rawScoreEntry struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

type rawScore struct {
	ID        string          `json:"id"`
	SportKey  string          `json:"sport_key"`
	Completed bool            `json:"completed"`
	HomeTeam  string          `json:"home_team"`
	AwayTeam  string          `json:"away_team"`
	Scores    []rawScoreEntry `json:"scores"`
}

// get faz a chamada HTTP, decodifica o corpo e extrai o metadado de cota
func (a *OddsAPIAdapter) get(ctx context.Context, path string, params url.Values, out any) (*budget.Quota, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", a.apiKey)

	u := a.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &ProviderError{Provider: a.key, Retryable: false, Err: err}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// timeout e erro de rede são retentáveis
		return nil, &ProviderError{Provider: a.key, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	quota := a.quotaFrom(resp)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return quota, &ProviderError{Provider: a.key, Retryable: false, Err: ErrRateLimited}
	case resp.StatusCode >= 500:
		return quota, &ProviderError{Provider: a.key, Retryable: true, Err: fmt.Errorf("http %s", resp.Status)}
	case resp.StatusCode >= 400:
		return quota, &ProviderError{Provider: a.key, Retryable: false, Err: fmt.Errorf("http %s", resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return quota, &ProviderError{Provider: a.key, Retryable: false, Err: fmt.Errorf("decode body: %w", err)}
	}
	return quota, nil
}

// quotaFrom lê os headers de cota da resposta. Sem header de reset,
// assume a próxima hora cheia.
func (a *OddsAPIAdapter) quotaFrom(resp *http.Response) *budget.Quota {
	rem := resp.Header.Get("X-Requests-Remaining")
	if rem == "" {
		return nil
	}
	n, err := strconv.Atoi(rem)
	if err != nil {
		return nil
	}
	reset := time.Now().Truncate(time.Hour).Add(time.Hour)
	if rs := resp.Header.Get("X-Requests-Reset"); rs != "" {
		if sec, err := strconv.ParseInt(rs, 10, 64); err == nil {
			reset = time.Unix(sec, 0)
		}
	}
	return &budget.Quota{Remaining: n, ResetTime: reset}
}

func (a *OddsAPIAdapter) FetchSports(ctx context.Context) ([]model.Sport, *budget.Quota, error) {
	var raw []rawSport
	quota, err := a.get(ctx, "/v4/sports", nil, &raw)
	if err != nil {
		return nil, quota, err
	}
	out := make([]model.Sport, 0, len(raw))
	for _, s := range raw {
		if s.Key == "" {
			continue
		}
		out = append(out, model.Sport{ID: s.Key, Name: s.Title, Active: s.Active})
	}
	return out, quota, nil
}

func (a *OddsAPIAdapter) FetchEvents(ctx context.Context, f Filter) ([]model.Event, *budget.Quota, error) {
	sport := f.Sport
	if sport == "" {
		sport = "upcoming"
	}
	params := url.Values{}
	params.Set("regions", "us")
	params.Set("markets", "h2h,spreads,totals")
	params.Set("oddsFormat", "american")

	var raw []rawEvent
	quota, err := a.get(ctx, "/v4/sports/"+url.PathEscape(sport)+"/odds", params, &raw)
	if err != nil {
		return nil, quota, err
	}

	now := time.Now().UTC()
	out := make([]model.Event, 0, len(raw))
	for _, r := range raw {
		ev, err := a.normalize(r, now)
		if err != nil {
			// registro malformado não derruba o lote
			a.log.Warn("skipping malformed event",
				zap.String("provider", a.key),
				zap.String("raw_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, ev)
	}
	return out, quota, nil
}

func (a *OddsAPIAdapter) FetchScores(ctx context.Context) ([]ScoreRecord, *budget.Quota, error) {
	var raw []rawScore
	quota, err := a.get(ctx, "/v4/scores", nil, &raw)
	if err != nil {
		return nil, quota, err
	}

	out := make([]ScoreRecord, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			continue
		}
		rec := ScoreRecord{
			EventID:   a.key + ":" + r.ID,
			Sport:     r.SportKey,
			Completed: r.Completed,
		}
		for _, s := range r.Scores {
			n, err := strconv.Atoi(s.Score)
			if err != nil {
				a.log.Warn("skipping malformed score entry",
					zap.String("raw_id", r.ID), zap.String("score", s.Score))
				continue
			}
			switch s.Name {
			case r.HomeTeam:
				rec.Score.Team1 = n
			case r.AwayTeam:
				rec.Score.Team2 = n
			}
		}
		out = append(out, rec)
	}
	return out, quota, nil
}

// normalize converte um evento cru pro modelo canônico.
// Usa o primeiro bookmaker que tiver cada mercado; mercado com ponta
// faltando ou preço inválido é omitido por inteiro.
func (a *OddsAPIAdapter) normalize(r rawEvent, now time.Time) (model.Event, error) {
	if r.ID == "" || r.HomeTeam == "" || r.AwayTeam == "" {
		return model.Event{}, fmt.Errorf("missing id or teams")
	}

	ev := model.Event{
		ID:          a.key + ":" + r.ID,
		Sport:       r.SportKey,
		League:      r.SportTitle,
		Team1:       r.HomeTeam,
		Team2:       r.AwayTeam,
		StartTime:   r.CommenceTime.UTC(),
		Status:      model.ComputeStatus(r.CommenceTime, r.Completed, now, a.preGameWindow),
		LastUpdated: now,
	}

	for _, bm := range r.Bookmakers {
		ev.Bookmakers = append(ev.Bookmakers, model.ProviderRef{Key: bm.Key, Title: bm.Title, Active: true})
		for _, mk := range bm.Markets {
			switch mk.Key {
			case "h2h":
				if ev.Odds.Moneyline == nil {
					ev.Odds.Moneyline = a.moneyline(mk, r.HomeTeam, r.AwayTeam)
				}
			case "spreads":
				if ev.Odds.Spread == nil {
					ev.Odds.Spread = a.spread(mk, r.HomeTeam, r.AwayTeam)
				}
			case "totals":
				if ev.Odds.Total == nil {
					ev.Odds.Total = a.total(mk)
				}
			}
		}
	}
	return ev, nil
}

func (a *OddsAPIAdapter) moneyline(mk rawMarket, home, away string) *model.Moneyline {
	var m model.Moneyline
	var gotHome, gotAway bool
	for _, o := range mk.Outcomes {
		dec, err := odds.ToDecimal(o.Price)
		if err != nil {
			a.log.Warn("invalid moneyline price", zap.String("outcome", o.Name), zap.Int("price", o.Price))
			continue
		}
		switch o.Name {
		case home:
			m.Team1, gotHome = dec, true
		case away:
			m.Team2, gotAway = dec, true
		}
	}
	// as duas pontas ou nada
	if !gotHome || !gotAway {
		return nil
	}
	return &m
}

func (a *OddsAPIAdapter) spread(mk rawMarket, home, away string) *model.Spread {
	var s model.Spread
	var gotHome, gotAway bool
	for _, o := range mk.Outcomes {
		if o.Point == nil {
			continue
		}
		dec, err := odds.ToDecimal(o.Price)
		if err != nil {
			a.log.Warn("invalid spread price", zap.String("outcome", o.Name), zap.Int("price", o.Price))
			continue
		}
		switch o.Name {
		case home:
			s.Team1Points, s.Team1Odds, gotHome = *o.Point, dec, true
		case away:
			s.Team2Points, s.Team2Odds, gotAway = *o.Point, dec, true
		}
	}
	if !gotHome || !gotAway {
		return nil
	}
	return &s
}

func (a *OddsAPIAdapter) total(mk rawMarket) *model.Total {
	var t model.Total
	var gotOver, gotUnder bool
	for _, o := range mk.Outcomes {
		if o.Point == nil {
			continue
		}
		dec, err := odds.ToDecimal(o.Price)
		if err != nil {
			a.log.Warn("invalid total price", zap.String("outcome", o.Name), zap.Int("price", o.Price))
			continue
		}
		switch strings.ToLower(o.Name) {
		case "over":
			t.Points, t.OverOdds, gotOver = *o.Point, dec, true
		case "under":
			t.UnderOdds, gotUnder = dec, true
		}
	}
	if !gotOver || !gotUnder {
		return nil
	}
	return &t
}
