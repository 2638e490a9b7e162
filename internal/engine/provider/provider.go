package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/radieske/live-odds-engine/internal/engine/budget"
	"github.com/radieske/live-odds-engine/pkg/contracts/model"
)

// ErrRateLimited indica resposta 429 do fornecedor; o scheduler aguarda o reset
var ErrRateLimited = errors.New("provider rate limited")

// ProviderError classifica falhas de chamada ao fornecedor.
// Retryable cobre erros de rede e 5xx; 4xx não é retentado.
type ProviderError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v (retryable=%v)", e.Provider, e.Err, e.Retryable)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Filter restringe a busca de eventos
type Filter struct {
	Sport string
}

// ScoreRecord é o placar normalizado de um evento, como reportado pelo fornecedor
type ScoreRecord struct {
	EventID   string
	Sport     string
	Score     model.Score
	Completed bool
}

// Adapter é o contrato de um fornecedor de dados esportivos.
// Cada chamada devolve dados normalizados e o metadado de cota da resposta
// (nil quando o fornecedor não cobra a chamada). Registros malformados são
// pulados e logados, nunca derrubam o lote.
type Adapter interface {
	Key() string
	FetchSports(ctx context.Context) ([]model.Sport, *budget.Quota, error)
	FetchEvents(ctx context.Context, f Filter) ([]model.Event, *budget.Quota, error)
	FetchScores(ctx context.Context) ([]ScoreRecord, *budget.Quota, error)
}
