package notify

import (
	"context"
	"fmt"
	"math"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-engine/internal/engine/pubsub"
	"github.com/radieske/live-odds-engine/internal/engine/store"
	"github.com/radieske/live-odds-engine/pkg/contracts/events"
)

// DefaultMoveThreshold é o movimento mínimo de moneyline (em odds decimais)
// que gera alerta. Movimentos menores são ruído pra quem acompanha por chat.
const DefaultMoveThreshold = 0.20

// TelegramNotifier manda alertas de movimentos relevantes pra um chat.
// Sink opcional; sem token configurado, nem é construído.
type TelegramNotifier struct {
	bot       *tgbotapi.BotAPI
	chatID    int64
	threshold float64
	store     *store.EventStore
	log       *zap.Logger
}

// NewTelegramNotifier valida o token junto à API do Telegram na construção
func NewTelegramNotifier(token string, chatID int64, threshold float64, st *store.EventStore, log *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultMoveThreshold
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, threshold: threshold, store: st, log: log}, nil
}

// Run consome o broker e alerta sobre viradas de status e movimentos grandes
func (n *TelegramNotifier) Run(ctx context.Context, b *pubsub.Broker) {
	sub := b.Subscribe(128, pubsub.TopicAll)
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if msg := n.render(ev); msg != "" {
				n.send(msg)
			}
		}
	}
}

// render decide se o evento merece alerta e monta o texto.
// Retorna vazio quando não há nada a comunicar.
func (n *TelegramNotifier) render(ev events.ChangeEvent) string {
	label := ev.EventID
	if cached := n.store.Get(ev.EventID); cached != nil {
		label = fmt.Sprintf("%s x %s", cached.Team1, cached.Team2)
	}

	switch ev.Type {
	case events.TypeEventStarted:
		return fmt.Sprintf("🟢 Começou: %s", label)
	case events.TypeEventEnded:
		return fmt.Sprintf("🏁 Encerrado: %s", label)
	case events.TypeOddsUpdate:
		return n.renderOddsMove(label, ev)
	}
	return ""
}

func (n *TelegramNotifier) renderOddsMove(label string, ev events.ChangeEvent) string {
	var biggest float64
	var key string
	var delta events.LegDelta
	for k, d := range ev.Delta {
		move := math.Abs(d.New - d.Old)
		if move > biggest {
			biggest = move
			key = k
			delta = d
		}
	}
	if biggest < n.threshold {
		return ""
	}
	arrow := "📈"
	if delta.Direction == events.DirectionDown {
		arrow = "📉"
	}
	return fmt.Sprintf("%s %s: %s %.2f → %.2f", arrow, label, key, delta.Old, delta.New)
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn("telegram send failed", zap.Error(err))
	}
}
