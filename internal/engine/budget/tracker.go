package budget

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateBudget guarda a cota restante de um fornecedor e o horário de reset
type RateBudget struct {
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

// Quota é o metadado de cota retornado junto com cada resposta do fornecedor
type Quota struct {
	Remaining int
	ResetTime time.Time
}

// Tracker contabiliza a cota de requisições por fornecedor.
// Cada fornecedor tem seu próprio lock para não serializar polls de fontes distintas.
type Tracker struct {
	log *zap.Logger

	mu        sync.RWMutex
	providers map[string]*providerBudget
}

type providerBudget struct {
	mu     sync.Mutex
	budget RateBudget
}

// NewTracker cria um tracker vazio; fornecedores são registrados sob demanda
func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{
		log:       log,
		providers: make(map[string]*providerBudget),
	}
}

// Register inicializa a cota de um fornecedor
func (t *Tracker) Register(provider string, remaining int, reset time.Time) {
	pb := t.provider(provider)
	pb.mu.Lock()
	pb.budget = RateBudget{Remaining: remaining, ResetTime: reset}
	pb.mu.Unlock()
}

// provider devolve (criando se preciso) o registro do fornecedor
func (t *Tracker) provider(key string) *providerBudget {
	t.mu.RLock()
	pb, ok := t.providers[key]
	t.mu.RUnlock()
	if ok {
		return pb
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if pb, ok = t.providers[key]; ok {
		return pb
	}
	pb = &providerBudget{}
	t.providers[key] = pb
	return pb
}

// CanSpend informa se ainda há cota para chamar o fornecedor.
// Cota zerada volta a liberar chamadas depois do horário de reset.
func (t *Tracker) CanSpend(provider string) bool {
	pb := t.provider(provider)
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.budget.Remaining > 0 {
		return true
	}
	// fornecedor ainda sem metadado de cota: libera a primeira chamada
	if pb.budget.ResetTime.IsZero() {
		return true
	}
	// cota esgotada: só libera quando o reset já passou
	return time.Now().After(pb.budget.ResetTime)
}

// RecordQuota aplica o metadado de cota vindo na resposta do fornecedor.
// ResetTime segue o último escritor com horário mais recente; Remaining só
// diminui dentro da mesma janela (atualizações concorrentes fora de ordem
// não reinflam a cota).
func (t *Tracker) RecordQuota(provider string, q *Quota) {
	if q == nil {
		return
	}
	pb := t.provider(provider)
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if q.ResetTime.After(pb.budget.ResetTime) {
		// nova janela: aceita o valor reportado
		pb.budget.ResetTime = q.ResetTime
		pb.budget.Remaining = max(q.Remaining, 0)
		return
	}
	if q.Remaining < pb.budget.Remaining {
		pb.budget.Remaining = max(q.Remaining, 0)
	}
}

// RecordOutcome contabiliza o desfecho de uma chamada sem metadado de cota.
// Sucesso consome uma unidade; falha não consome (a chamada não foi cobrada).
func (t *Tracker) RecordOutcome(provider string, success bool) {
	if !success {
		return
	}
	pb := t.provider(provider)
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.budget.Remaining > 0 {
		pb.budget.Remaining--
	}
}

// Snapshot devolve uma cópia das cotas atuais para o endpoint de status
func (t *Tracker) Snapshot() map[string]RateBudget {
	t.mu.RLock()
	keys := make([]string, 0, len(t.providers))
	for k := range t.providers {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	out := make(map[string]RateBudget, len(keys))
	for _, k := range keys {
		pb := t.provider(k)
		pb.mu.Lock()
		out[k] = pb.budget
		pb.mu.Unlock()
	}
	return out
}
