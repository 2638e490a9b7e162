package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/radieske/live-odds-engine/internal/engine/budget"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// catálogo fixo de partidas sintéticas; ids estáveis para o pipeline
// se comportar igual com dados reais ou simulados
var mockCatalog = []struct {
	id, sport, league, team1, team2 string
	startIn                         time.Duration
}{
	{"MATCH_001", "soccer", "Brasileirão", "Flamengo", "Palmeiras", -30 * time.Minute},
	{"MATCH_002", "soccer", "Brasileirão", "Grêmio", "Internacional", -10 * time.Minute},
	{"MATCH_003", "soccer", "Brasileirão", "Corinthians", "Santos", 20 * time.Minute},
	{"MATCH_004", "basketball", "NBB", "Flamengo Basquete", "Franca", 2 * time.Hour},
	{"MATCH_005", "basketball", "NBB", "Minas", "Bauru", 5 * time.Hour},
}

// MockAdapter implementa o contrato de Adapter com dados sintéticos
// determinísticos. Serve de fallback quando não há chave de API configurada
// ou quando o fornecedor real está falhando em sequência.
type MockAdapter struct {
	key           string
	preGameWindow time.Duration
	start         time.Time

	mu  sync.Mutex
	rnd *rand.Rand
	// placar acumulado por evento, pra simular progressão de jogo
	scores map[string]*model.Score
}

// NewMockAdapter cria o mock com seed fixa (saída reprodutível)
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		key:           "mock",
		preGameWindow: 30 * time.Minute,
		start:         time.Now().UTC(),
		rnd:           rand.New(rand.NewSource(42)),
		scores:        make(map[string]*model.Score),
	}
}

func (m *MockAdapter) Key() string { return m.key }

// FetchSports devolve as modalidades presentes no catálogo
func (m *MockAdapter) FetchSports(_ context.Context) ([]model.Sport, *budget.Quota, error) {
	return []model.Sport{
		{ID: "soccer", Name: "Futebol", Active: true},
		{ID: "basketball", Name: "Basquete", Active: true},
	}, nil, nil
}

// FetchEvents gera odds plausíveis a partir do catálogo fixo.
// Os preços variam um pouco a cada chamada pra exercitar o detector.
func (m *MockAdapter) FetchEvents(_ context.Context, f Filter) ([]model.Event, *budget.Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	out := make([]model.Event, 0, len(mockCatalog))
	for _, c := range mockCatalog {
		if f.Sport != "" && c.sport != f.Sport {
			continue
		}
		start := m.start.Add(c.startIn)
		ev := model.Event{
			ID:        m.key + ":" + c.id,
			Sport:     c.sport,
			League:    c.league,
			Team1:     c.team1,
			Team2:     c.team2,
			StartTime: start,
			Status:    model.ComputeStatus(start, false, now, m.preGameWindow),
			Odds: model.OddsSnapshot{
				Moneyline: &model.Moneyline{
					Team1: m.price(1.40, 3.50),
					Team2: m.price(2.00, 5.00),
				},
				Spread: &model.Spread{
					Team1Points: -1.5, Team1Odds: m.price(1.70, 2.20),
					Team2Points: 1.5, Team2Odds: m.price(1.70, 2.20),
				},
				Total: &model.Total{
					Points: 2.5, OverOdds: m.price(1.80, 2.00), UnderOdds: m.price(1.80, 2.00),
				},
			},
			Bookmakers:  []model.ProviderRef{{Key: m.key, Title: "Mock Source", Active: true}},
			LastUpdated: now,
		}
		out = append(out, ev)
	}
	return out, nil, nil
}

// FetchScores simula progressão de placar nos eventos ao vivo
func (m *MockAdapter) FetchScores(_ context.Context) ([]ScoreRecord, *budget.Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var out []ScoreRecord
	for _, c := range mockCatalog {
		start := m.start.Add(c.startIn)
		if model.ComputeStatus(start, false, now, m.preGameWindow) != model.StatusLive {
			continue
		}
		id := m.key + ":" + c.id
		sc, ok := m.scores[id]
		if !ok {
			sc = &model.Score{}
			m.scores[id] = sc
		}
		// de vez em quando alguém marca
		if m.rnd.Intn(5) == 0 {
			if m.rnd.Intn(2) == 0 {
				sc.Team1++
			} else {
				sc.Team2++
			}
		}
		out = append(out, ScoreRecord{EventID: id, Sport: c.sport, Score: *sc})
	}
	return out, nil, nil
}

func (m *MockAdapter) price(min, max float64) float64 {
	return min + m.rnd.Float64()*(max-min)
}
