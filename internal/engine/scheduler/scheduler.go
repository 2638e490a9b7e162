package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/budget"
	"github.com/radieske/live-odds-engine/internal/engine/detector"
	"github.com/radieske/live-odds-engine/internal/engine/provider"
	"github.com/radieske/live-odds-engine/internal/engine/pubsub"
	"github.com/radieske/live-odds-engine/internal/engine/store"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// ErrRateLimited é devolvido por RefreshNow quando a cota do fornecedor está esgotada
var ErrRateLimited = errors.New("rate budget exhausted")

var (
	pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_polls_total",
		Help: "Ticks de polling executados, por loop",
	}, []string{"loop"})
	providerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_provider_errors_total",
		Help: "Falhas de chamada ao fornecedor, por loop",
	}, []string{"loop"})
	usingMockGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_using_mock",
		Help: "1 quando a fonte de dados corrente é o mock",
	})
)

func init() {
	prometheus.MustRegister(pollsTotal, providerErrorsTotal, usingMockGauge)
}

// Config define as cadências e limites do scheduler
type Config struct {
	OddsInterval      time.Duration // refresh de odds (~10s)
	ScoresInterval    time.Duration // refresh de placar (~5s)
	DiscoveryInterval time.Duration // descoberta de eventos novos (~60s)
	CallTimeout       time.Duration // timeout de cada chamada ao fornecedor
	Retention         time.Duration // quanto tempo eventos encerrados ficam no cache
	FailoverThreshold int           // falhas consecutivas antes de cair pro mock
	FailoverCooldown  time.Duration // quanto tempo fica no mock antes de tentar de novo
}

// DefaultConfig devolve as cadências padrão
func DefaultConfig() Config {
	return Config{
		OddsInterval:      10 * time.Second,
		ScoresInterval:    5 * time.Second,
		DiscoveryInterval: 60 * time.Second,
		CallTimeout:       5 * time.Second,
		Retention:         time.Hour,
		FailoverThreshold: 3,
		FailoverCooldown:  2 * time.Minute,
	}
}

// Scheduler roda os três loops de polling (odds, placares, descoberta),
// cada um no seu próprio ticker e goroutine. Um fornecedor lento num loop
// não trava os outros: o único estado compartilhado são o cache e o tracker
// de cota, ambos com seções críticas curtas.
type Scheduler struct {
	cfg     Config
	log     *zap.Logger
	primary provider.Adapter // nil quando não há chave de API
	mock    provider.Adapter
	tracker *budget.Tracker
	store   *store.EventStore
	det     *detector.Detector
	broker  *pubsub.Broker

	mu        sync.Mutex
	failures  int       // falhas consecutivas do fornecedor primário
	mockUntil time.Time // até quando o failover segura o mock
	sports    []model.Sport
	running   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New monta o scheduler; primary pode ser nil (opera só com o mock)
func New(cfg Config, log *zap.Logger, primary provider.Adapter, mock provider.Adapter,
	tracker *budget.Tracker, st *store.EventStore, det *detector.Detector, broker *pubsub.Broker) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		log:     log,
		primary: primary,
		mock:    mock,
		tracker: tracker,
		store:   st,
		det:     det,
		broker:  broker,
	}
}

// Start sobe os três loops. O primeiro ciclo de descoberta roda na hora
// pra popular o cache antes do primeiro tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(3)
	go s.loop("discovery", s.cfg.DiscoveryInterval, true, s.pollDiscovery)
	go s.loop("odds", s.cfg.OddsInterval, true, s.pollOdds)
	go s.loop("scores", s.cfg.ScoresInterval, false, s.pollScores)

	s.log.Info("scheduler started",
		zap.Duration("odds_interval", s.cfg.OddsInterval),
		zap.Duration("scores_interval", s.cfg.ScoresInterval),
		zap.Duration("discovery_interval", s.cfg.DiscoveryInterval),
		zap.Bool("has_primary", s.primary != nil),
	)
}

// Stop cancela os loops e aguarda as chamadas em andamento terminarem
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
}

// loop roda fn a cada intervalo até o contexto encerrar
func (s *Scheduler) loop(name string, interval time.Duration, immediate bool, fn func(ctx context.Context)) {
	defer s.wg.Done()

	run := func() {
		pollsTotal.WithLabelValues(name).Inc()
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CallTimeout)
		fn(ctx)
		cancel()
	}

	if immediate {
		run()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Running informa se os loops estão ativos
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// UsingMock informa se a fonte corrente é o mock (sem chave ou em failover)
func (s *Scheduler) UsingMock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingMockLocked()
}

func (s *Scheduler) usingMockLocked() bool {
	if s.primary == nil {
		return true
	}
	return time.Now().Before(s.mockUntil)
}

// Sports devolve as modalidades conhecidas pela última descoberta
func (s *Scheduler) Sports() []model.Sport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Sport(nil), s.sports...)
}

// adapter escolhe a fonte do ciclo corrente. A troca real/mock é decisão
// daqui; cache, detector e broker não sabem a diferença.
func (s *Scheduler) adapter() provider.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usingMockLocked() {
		usingMockGauge.Set(1)
		return s.mock
	}
	usingMockGauge.Set(0)
	return s.primary
}

// recordFailure conta falhas consecutivas do primário e aciona o failover
func (s *Scheduler) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.failures >= s.cfg.FailoverThreshold && !time.Now().Before(s.mockUntil) {
		s.mockUntil = time.Now().Add(s.cfg.FailoverCooldown)
		s.log.Warn("provider failing, switching to mock source",
			zap.Int("consecutive_failures", s.failures),
			zap.Duration("cooldown", s.cfg.FailoverCooldown),
		)
	}
}

func (s *Scheduler) recordSuccess() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

// fetchEvents chama o adapter com retry limitado (uma retentativa, só em erro
// retryable) e contabiliza cota e desfecho no tracker.
func (s *Scheduler) fetchEvents(ctx context.Context, ad provider.Adapter, f provider.Filter, loop string) ([]model.Event, error) {
	evs, quota, err := ad.FetchEvents(ctx, f)
	s.tracker.RecordQuota(ad.Key(), quota)
	if err != nil {
		var pe *provider.ProviderError
		if errors.As(err, &pe) && pe.Retryable {
			evs, quota, err = ad.FetchEvents(ctx, f)
			s.tracker.RecordQuota(ad.Key(), quota)
		}
	}
	if err != nil {
		providerErrorsTotal.WithLabelValues(loop).Inc()
		if ad == s.primary {
			s.tracker.RecordOutcome(ad.Key(), false)
			s.recordFailure()
		}
		return nil, err
	}
	if ad == s.primary {
		if quota == nil {
			// sem metadado na resposta, desconta uma chamada manualmente
			s.tracker.RecordOutcome(ad.Key(), true)
		}
		s.recordSuccess()
	}
	return evs, nil
}

// ingest passa um lote de eventos pelo cache e pelo detector, publicando as mudanças
func (s *Scheduler) ingest(evs []model.Event) int {
	n := 0
	for _, ev := range evs {
		prev, stored := s.store.Upsert(ev)
		for _, ce := range s.det.Diff(prev, stored) {
			s.broker.Publish(ce)
		}
		n++
	}
	return n
}

// pollOdds é o loop de refresh de odds dos eventos conhecidos
func (s *Scheduler) pollOdds(ctx context.Context) {
	ad := s.adapter()
	if ad == s.primary && !s.tracker.CanSpend(ad.Key()) {
		// cota esgotada: segue servindo do cache, sem chamada sintética
		s.log.Debug("odds poll skipped, budget exhausted", zap.String("provider", ad.Key()))
		return
	}

	evs, err := s.fetchEvents(ctx, ad, provider.Filter{}, "odds")
	if err != nil {
		s.log.Warn("odds poll failed", zap.String("provider", ad.Key()), zap.Error(err))
		return
	}
	s.ingest(evs)
}

// pollScores é o loop de refresh de placares dos eventos ao vivo
func (s *Scheduler) pollScores(ctx context.Context) {
	ad := s.adapter()
	if ad == s.primary && !s.tracker.CanSpend(ad.Key()) {
		return
	}

	recs, quota, err := ad.FetchScores(ctx)
	s.tracker.RecordQuota(ad.Key(), quota)
	if err != nil {
		providerErrorsTotal.WithLabelValues("scores").Inc()
		if ad == s.primary {
			s.tracker.RecordOutcome(ad.Key(), false)
			s.recordFailure()
		}
		s.log.Warn("scores poll failed", zap.String("provider", ad.Key()), zap.Error(err))
		return
	}
	if ad == s.primary {
		if quota == nil {
			s.tracker.RecordOutcome(ad.Key(), true)
		}
		s.recordSuccess()
	}

	now := time.Now().UTC()
	for _, rec := range recs {
		cached := s.store.Get(rec.EventID)
		if cached == nil {
			// placar de evento que nunca vimos; a descoberta pega depois
			continue
		}
		next := cached.Clone()
		sc := rec.Score
		next.Score = &sc
		if rec.Completed {
			next.Status = model.StatusFinished
		}
		next.LastUpdated = now

		prev, stored := s.store.Upsert(next)
		for _, ce := range s.det.Diff(prev, stored) {
			s.broker.Publish(ce)
		}
	}
}

// pollDiscovery descobre modalidades e eventos novos e aplica a retenção do cache
func (s *Scheduler) pollDiscovery(ctx context.Context) {
	ad := s.adapter()
	if ad == s.primary && !s.tracker.CanSpend(ad.Key()) {
		return
	}

	sports, quota, err := ad.FetchSports(ctx)
	s.tracker.RecordQuota(ad.Key(), quota)
	if err != nil {
		providerErrorsTotal.WithLabelValues("discovery").Inc()
		if ad == s.primary {
			s.recordFailure()
		}
		s.log.Warn("sports discovery failed", zap.String("provider", ad.Key()), zap.Error(err))
	} else {
		s.mu.Lock()
		s.sports = sports
		s.mu.Unlock()
	}

	evs, err := s.fetchEvents(ctx, ad, provider.Filter{}, "discovery")
	if err != nil {
		s.log.Warn("event discovery failed", zap.String("provider", ad.Key()), zap.Error(err))
	} else {
		s.ingest(evs)
	}

	s.store.EvictFinishedBefore(time.Now().Add(-s.cfg.Retention))
}

// RefreshNow dispara um ciclo de poll fora de hora (endpoint /refresh).
// Respeita o tracker de cota: com orçamento esgotado devolve ErrRateLimited
// em vez de furar a fila. force só ignora o cooldown de failover, nunca a cota.
func (s *Scheduler) RefreshNow(ctx context.Context, sport string, force bool) (int, error) {
	ad := s.adapter()
	if force && s.primary != nil {
		ad = s.primary
	}
	if ad == s.primary && !s.tracker.CanSpend(ad.Key()) {
		return 0, ErrRateLimited
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	evs, err := s.fetchEvents(cctx, ad, provider.Filter{Sport: sport}, "refresh")
	if err != nil {
		return 0, err
	}
	return s.ingest(evs), nil
}
