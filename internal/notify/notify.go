// Package notify wraps the abstract chat delivery channel with a token
// bucket so that alert storms (say, every case failing its upload at
// once) cannot flood the rescue channel. Ordinary notices are shed when
// the bucket runs dry; urgent (code-red) traffic always goes through.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mfreire/go-rescue-board/internal/metrics"
)

// Delivery is the outbound chat transport, implemented elsewhere.
// Notify is fire-and-forget from the board's point of view.
type Delivery interface {
	Notify(ctx context.Context, target, text string) error
}

// sendTimeout bounds one outbound delivery attempt.
const sendTimeout = 10 * time.Second

// Limiter is a rate-limited Delivery wrapper.
type Limiter struct {
	d   Delivery
	lim *rate.Limiter
	log zerolog.Logger
}

// New wraps d with a token bucket of the given rate and burst.
func New(d Delivery, rps float64, burst int) *Limiter {
	return &Limiter{
		d:   d,
		lim: rate.NewLimiter(rate.Limit(rps), burst),
		log: log.With().Str("component", "notify").Logger(),
	}
}

// Notify sends text to target if the bucket allows it, dropping (with a
// log line and a metric) otherwise. Errors from the transport are logged,
// never returned: outbound notices are best-effort.
func (l *Limiter) Notify(target, text string) {
	if !l.lim.Allow() {
		metrics.NotificationsDropped.Inc()
		l.log.Warn().Str("target", target).Msg("notification dropped by rate limiter")
		return
	}
	l.send(target, text)
}

// NotifyUrgent bypasses the bucket. Reserved for code-red traffic.
func (l *Limiter) NotifyUrgent(target, text string) {
	// Still consume a token when available so urgent traffic is counted
	// against the budget without ever being blocked by it.
	l.lim.Allow()
	l.send(target, text)
}

func (l *Limiter) send(target, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := l.d.Notify(ctx, target, text); err != nil {
		l.log.Error().Err(err).Str("target", target).Msg("notification delivery failed")
	}
}

// LogDelivery writes notifications to the process log. It backs the
// standalone daemon, where no chat transport is wired in.
type LogDelivery struct{}

// Notify logs the notification and reports success.
func (LogDelivery) Notify(_ context.Context, target, text string) error {
	log.Info().Str("target", target).Str("text", text).Msg("chat notification")
	return nil
}
