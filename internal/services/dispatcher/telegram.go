package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	config "github.com/NordCoder/Flatwatch/internal/config/dispatcher"
	"github.com/NordCoder/Flatwatch/internal/domain/notification"
	"github.com/NordCoder/Flatwatch/internal/domain/reminder"
	"github.com/NordCoder/Flatwatch/internal/obs"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewHTTPClient is the traced client the bot API talks through.
func NewHTTPClient(cfg config.Telegram) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: obs.HTTPTransport(transport),
	}
}

func NewBotAPI(cfg config.Telegram) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, NewHTTPClient(cfg))
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	api.Debug = cfg.Debug
	return api, nil
}

// TelegramSender delivers notifications as bot messages. Users are addressed
// by their chat id. Sends share one rate limit, and a flood-wait answer from
// Telegram holds every send until it expires.
type TelegramSender struct {
	api     telegramAPI
	limiter *rate.Limiter
	format  *Formatter
	log     *zap.Logger

	mu        sync.Mutex
	holdUntil time.Time
}

func NewTelegramSender(api telegramAPI, cfg config.Telegram, log *zap.Logger) *TelegramSender {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := max(cfg.Burst, 1)
	return &TelegramSender{
		api:     api,
		limiter: rate.NewLimiter(limit, burst),
		format:  NewFormatter(),
		log:     log.With(zap.String("component", "dispatcher.telegram")),
	}
}

var (
	_ notification.Sender = (*TelegramSender)(nil)
	_ reminder.Sender     = (*TelegramSender)(nil)
)

func (s *TelegramSender) Send(ctx context.Context, userID, listingID int64, p notification.Payload) error {
	if p.Listing == nil {
		return &notification.PermanentError{Err: errors.New("empty payload")}
	}
	if err := s.admit(ctx); err != nil {
		return err
	}

	text := s.format.Text(p.Listing)
	markup := detailsMarkup(p.Listing.SourceURL)
	log := obs.WithTrace(ctx, s.log, zap.Int64("user_id", userID), zap.Int64("listing_id", listingID))

	if len(p.Listing.Images) > 0 && utf8.RuneCountInString(text) <= captionLimit {
		photo := tgbotapi.NewPhoto(userID, tgbotapi.FileURL(p.Listing.Images[0]))
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		_, err := s.api.Send(photo)
		if err == nil {
			return nil
		}
		if !isBadPhoto(err) {
			return s.classify(err)
		}
		log.Debug("photo rejected; sending text", zap.Error(err))
	}

	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	_, err := s.api.Send(msg)
	return s.classify(err)
}

// SendText sends a plain message such as a subscription reminder. It shares
// the rate limit and flood holds with listing notifications.
func (s *TelegramSender) SendText(ctx context.Context, userID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return &notification.PermanentError{Err: errors.New("empty text")}
	}
	if err := s.admit(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.DisableWebPagePreview = true
	_, err := s.api.Send(msg)
	return s.classify(err)
}

// admit waits out a flood hold and then takes a token from the limiter.
func (s *TelegramSender) admit(ctx context.Context) error {
	if err := s.waitHold(ctx); err != nil {
		return &notification.TransientError{Err: err}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return &notification.TransientError{Err: err}
	}
	return nil
}

func detailsMarkup(url string) *tgbotapi.InlineKeyboardMarkup {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	m := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Details", url)),
	)
	return &m
}

func (s *TelegramSender) waitHold(ctx context.Context) error {
	s.mu.Lock()
	d := time.Until(s.holdUntil)
	s.mu.Unlock()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *TelegramSender) hold(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until := time.Now().Add(d); until.After(s.holdUntil) {
		s.holdUntil = until
	}
}

func (s *TelegramSender) classify(err error) error {
	err = classify(err)
	var te *notification.TransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		s.hold(te.RetryAfter)
	}
	return err
}

func apiError(err error) (tgbotapi.Error, bool) {
	var p *tgbotapi.Error
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	var v tgbotapi.Error
	if errors.As(err, &v) {
		return v, true
	}
	return tgbotapi.Error{}, false
}

// classify maps a bot API error onto the delivery error taxonomy. Requests
// Telegram refuses outright (blocked bot, unknown chat, malformed request)
// are permanent; flood waits, server errors and transport failures are not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	e, ok := apiError(err)
	if !ok {
		return &notification.TransientError{Err: err}
	}
	switch {
	case e.Code == http.StatusTooManyRequests:
		return &notification.TransientError{
			Err:        err,
			RetryAfter: time.Duration(e.RetryAfter) * time.Second,
		}
	case e.Code == http.StatusBadRequest, e.Code == http.StatusForbidden, e.Code == http.StatusNotFound:
		return &notification.PermanentError{Err: err}
	}
	return &notification.TransientError{Err: err}
}

// isBadPhoto reports a request that failed only because Telegram could not
// use the image.
func isBadPhoto(err error) bool {
	e, ok := apiError(err)
	if !ok || e.Code != http.StatusBadRequest {
		return false
	}
	m := strings.ToLower(e.Message)
	return strings.Contains(m, "photo") || strings.Contains(m, "file") || strings.Contains(m, "http url") ||
		strings.Contains(m, "image")
}
