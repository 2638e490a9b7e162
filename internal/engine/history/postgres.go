package history

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/pubsub"
	"github.com/radieske/live-odds-engine/pkg/contracts/events"
)

// PostgresRepo grava o histórico de movimentos de odds em Postgres.
// Sink opcional, append-only; o motor não lê nada de volta daqui.
type PostgresRepo struct {
	db  *sql.DB
	log *zap.Logger
}

// NewPostgresRepo retorna uma instância de repositório Postgres
func NewPostgresRepo(db *sql.DB, log *zap.Logger) *PostgresRepo {
	return &PostgresRepo{db: db, log: log}
}

// insertOddsUpdate insere um movimento de odds no histórico (odds_history)
func (r *PostgresRepo) insertOddsUpdate(ctx context.Context, e events.ChangeEvent) error {
	if e.Odds == nil {
		return nil
	}
	var mlTeam1, mlTeam2 sql.NullFloat64
	if e.Odds.Moneyline != nil {
		mlTeam1 = sql.NullFloat64{Float64: e.Odds.Moneyline.Team1, Valid: true}
		mlTeam2 = sql.NullFloat64{Float64: e.Odds.Moneyline.Team2, Valid: true}
	}
	var spreadTeam1Pts, spreadTeam1, spreadTeam2Pts, spreadTeam2 sql.NullFloat64
	if e.Odds.Spread != nil {
		spreadTeam1Pts = sql.NullFloat64{Float64: e.Odds.Spread.Team1Points, Valid: true}
		spreadTeam1 = sql.NullFloat64{Float64: e.Odds.Spread.Team1Odds, Valid: true}
		spreadTeam2Pts = sql.NullFloat64{Float64: e.Odds.Spread.Team2Points, Valid: true}
		spreadTeam2 = sql.NullFloat64{Float64: e.Odds.Spread.Team2Odds, Valid: true}
	}
	var totalPoints, overOdds, underOdds sql.NullFloat64
	if e.Odds.Total != nil {
		totalPoints = sql.NullFloat64{Float64: e.Odds.Total.Points, Valid: true}
		overOdds = sql.NullFloat64{Float64: e.Odds.Total.OverOdds, Valid: true}
		underOdds = sql.NullFloat64{Float64: e.Odds.Total.UnderOdds, Valid: true}
	}

	const q = `
		INSERT INTO odds_history
		  (change_id, event_id, sport,
		   ml_team1, ml_team2,
		   spread_team1_points, spread_team1_odds, spread_team2_points, spread_team2_odds,
		   total_points, over_odds, under_odds,
		   recorded_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.EventID, e.Sport,
		mlTeam1, mlTeam2,
		spreadTeam1Pts, spreadTeam1, spreadTeam2Pts, spreadTeam2,
		totalPoints, overOdds, underOdds,
		e.Ts,
	)
	return err
}

// Run consome odds_update do broker e persiste cada movimento.
// Falha de escrita é logada e o fluxo continua.
func (r *PostgresRepo) Run(ctx context.Context, b *pubsub.Broker) {
	sub := b.Subscribe(256, pubsub.TopicAll)
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Type != events.TypeOddsUpdate {
				continue
			}
			if err := r.insertOddsUpdate(ctx, ev); err != nil {
				r.log.Warn("odds history insert failed", zap.String("event_id", ev.EventID), zap.Error(err))
			}
		}
	}
}
