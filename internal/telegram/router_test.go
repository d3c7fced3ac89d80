package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koalychatbot/koaly-telegram-bot/internal/chat"
	"github.com/koalychatbot/koaly-telegram-bot/internal/external"
	"github.com/koalychatbot/koaly-telegram-bot/internal/store"
	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// recordingSender captures outbound messages instead of hitting Telegram.
type recordingSender struct {
	sent []tgbotapi.MessageConfig
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (s *recordingSender) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1].Text
}

type scriptedProvider struct {
	answer string
	err    error
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt []types.ChatMessage) (string, error) {
	return p.answer, p.err
}

type fakeCheckout struct {
	url string
	err error
	ids []string
}

func (c *fakeCheckout) CreateCheckoutSession(ctx context.Context, userID string) (string, error) {
	c.ids = append(c.ids, userID)
	return c.url, c.err
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
		},
	}
}

func newTestRouter(provider chat.CompletionProvider, checkout external.CheckoutService) (*Router, *recordingSender, store.UserStore) {
	mem := store.NewMemoryStore()
	svc := chat.NewService(mem, provider, "Eres Koaly.", time.UTC, nil)
	sender := &recordingSender{}
	return NewRouter(sender, svc, checkout, nil), sender, mem
}

func TestRouter_StartSendsWelcome(t *testing.T) {
	r, sender, mem := newTestRouter(&scriptedProvider{answer: "hola"}, &fakeCheckout{})

	r.HandleUpdate(context.Background(), textUpdate(100, "/start"))

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "Soy *Koaly*")
	assert.Equal(t, tgbotapi.ModeMarkdown, sender.sent[0].ParseMode)

	// Commands never touch the quota.
	_, err := mem.Get(context.Background(), "100")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestRouter_PremiumSendsCheckoutLink(t *testing.T) {
	checkout := &fakeCheckout{url: "https://checkout.stripe.com/c/pay/cs_1"}
	r, sender, _ := newTestRouter(&scriptedProvider{}, checkout)

	r.HandleUpdate(context.Background(), textUpdate(100, "/premium"))

	assert.Equal(t, []string{"100"}, checkout.ids)
	assert.Contains(t, sender.lastText(t), "https://checkout.stripe.com/c/pay/cs_1")
}

func TestRouter_PremiumCheckoutFailure(t *testing.T) {
	checkout := &fakeCheckout{err: errors.New("stripe down")}
	r, sender, _ := newTestRouter(&scriptedProvider{}, checkout)

	r.HandleUpdate(context.Background(), textUpdate(100, "/premium"))

	assert.Equal(t, checkoutFailedText, sender.lastText(t))
}

func TestRouter_MessageRepliesAndCharges(t *testing.T) {
	r, sender, mem := newTestRouter(&scriptedProvider{answer: "¿Cómo estás?"}, &fakeCheckout{})

	r.HandleUpdate(context.Background(), textUpdate(100, "hola"))

	assert.Equal(t, "¿Cómo estás?", sender.lastText(t))
	rec, err := mem.Get(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.MessageCount)
}

func TestRouter_LimitNoticeWhenQuotaExhausted(t *testing.T) {
	r, sender, mem := newTestRouter(&scriptedProvider{answer: "respuesta"}, &fakeCheckout{})

	rec := types.NewUserRecord("100")
	rec.LastActiveDate = types.FormatDay(time.Now(), time.UTC)
	rec.MessageCount = types.DailyMessageLimit
	require.NoError(t, mem.Create(context.Background(), rec))

	r.HandleUpdate(context.Background(), textUpdate(100, "hola"))

	assert.Contains(t, sender.lastText(t), "Has hablado suficiente por hoy")
}

func TestRouter_ApologyOnProviderFailure(t *testing.T) {
	provider := &scriptedProvider{err: types.NewAppError(types.ErrCodeUpstreamCompletion, "boom", nil)}
	r, sender, _ := newTestRouter(provider, &fakeCheckout{})

	r.HandleUpdate(context.Background(), textUpdate(100, "hola"))

	assert.Equal(t, apologyText, sender.lastText(t))
}

func TestRouter_NotifyPremiumActivated(t *testing.T) {
	r, sender, _ := newTestRouter(&scriptedProvider{}, &fakeCheckout{})

	r.NotifyPremiumActivated(context.Background(), "100")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, premiumCongratsText, sender.sent[0].Text)
	assert.Equal(t, int64(100), sender.sent[0].ChatID)
}

func TestRouter_NotifyIgnoresNonNumericID(t *testing.T) {
	r, sender, _ := newTestRouter(&scriptedProvider{}, &fakeCheckout{})

	r.NotifyPremiumActivated(context.Background(), "not-a-chat-id")

	assert.Empty(t, sender.sent)
}

func TestRouter_IgnoresEmptyUpdates(t *testing.T) {
	r, sender, _ := newTestRouter(&scriptedProvider{}, &fakeCheckout{})

	r.HandleUpdate(context.Background(), tgbotapi.Update{})
	r.HandleUpdate(context.Background(), textUpdate(100, "   "))

	assert.Empty(t, sender.sent)
}
