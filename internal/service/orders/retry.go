package orders

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// RetryConfig задаёт повторы Save при сбое хранилища.
// BackoffFactor меньше 1 трактуется как постоянная задержка.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает политику, с которой работает сервис.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// NoRetry выполняет операцию ровно один раз.
func NoRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

func (c RetryConfig) attempts() int {
	return max(c.MaxAttempts, 1)
}

// delayAfter возвращает паузу после неудачной попытки с номером attempt (с единицы).
func (c RetryConfig) delayAfter(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	if c.BackoffFactor > 1 {
		for range attempt - 1 {
			delay *= c.BackoffFactor
			if c.MaxDelay > 0 && delay >= float64(c.MaxDelay) {
				return c.MaxDelay
			}
		}
	}
	if c.MaxDelay > 0 && time.Duration(delay) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// saveWithRetry повторяет save, только если хранилище вернуло ErrPersistence.
// Транзакция к этому моменту откатана, поэтому повторный Save безопасен.
func saveWithRetry(ctx context.Context, cfg RetryConfig, logger *log.Entry, operation string, save func() error) error {
	total := cfg.attempts()
	for attempt := 1; ; attempt++ {
		err := save()
		if err == nil {
			if attempt > 1 {
				logger.WithFields(log.Fields{"operation": operation, "attempt": attempt}).Info("order saved after retry")
			}
			return nil
		}
		if !domain.IsPersistence(err) || attempt == total {
			return err
		}

		delay := cfg.delayAfter(attempt)
		logger.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"of":        total,
			"delay":     delay,
			"error":     err,
		}).Warn("order save failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
