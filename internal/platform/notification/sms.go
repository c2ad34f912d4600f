// Package notification delivers SMS messages and fans status events out
// to live subscribers.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSMSSender writes messages to the log instead of a provider.
type LogSMSSender struct {
	logger zerolog.Logger
}

func NewLogSMSSender(logger zerolog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger.With().Str("component", "sms").Logger()}
}

func (s *LogSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info().Str("to", maskPhone(to)).Str("body", body).Msg("sms sent")
	return nil
}

// maskPhone keeps the last four digits.
func maskPhone(p string) string {
	if len(p) <= 4 {
		return p
	}
	masked := make([]byte, len(p))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(p)-4:], p[len(p)-4:])
	return string(masked)
}

// RetrySMSSender retries a failing sender with linear backoff.
type RetrySMSSender struct {
	next     SMSSender
	attempts int
	backoff  time.Duration
	logger   zerolog.Logger
}

func NewRetrySMSSender(next SMSSender, attempts int, backoff time.Duration, logger zerolog.Logger) *RetrySMSSender {
	if attempts < 1 {
		attempts = 1
	}
	return &RetrySMSSender{next: next, attempts: attempts, backoff: backoff, logger: logger}
}

func (s *RetrySMSSender) SendSMS(ctx context.Context, to, body string) error {
	var err error
	for i := 1; i <= s.attempts; i++ {
		if err = s.next.SendSMS(ctx, to, body); err == nil {
			return nil
		}
		if i == s.attempts {
			break
		}
		s.logger.Warn().Err(err).Int("attempt", i).Msg("sms send failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * s.backoff):
		}
	}
	return fmt.Errorf("send sms after %d attempts: %w", s.attempts, err)
}
