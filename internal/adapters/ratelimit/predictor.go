// Package ratelimit applies an adaptive, process-local token bucket around a
// planner.Predictor, adapted from the teacher's
// features/model/middleware.AdaptiveRateLimiter. The cluster-coordination
// half of the teacher's limiter (the Pulse replicated map) is dropped: this
// router has no multi-process deployment story for its Predictor calls, so
// there is nothing for a shared budget to coordinate (see DESIGN.md).
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fantastic-router/router/planner"
)

// Limiter wraps a planner.Predictor with an AIMD-style adaptive
// requests-per-minute budget: every Predict call waits for a token, and the
// budget halves on KindPredictorFailure and recovers gradually on success.
type Limiter struct {
	next planner.Predictor

	mu          sync.Mutex
	limiter     *rate.Limiter
	currentRPM  float64
	minRPM      float64
	maxRPM      float64
	recoveryRPM float64
}

// New wraps next with an adaptive limiter seeded at initialRPM requests per
// minute, allowed to grow up to maxRPM on sustained success. When maxRPM is
// zero or below initialRPM, it is clamped to initialRPM (a fixed-rate
// limiter).
func New(next planner.Predictor, initialRPM, maxRPM float64) *Limiter {
	if initialRPM <= 0 {
		initialRPM = 60
	}
	if maxRPM <= 0 || maxRPM < initialRPM {
		maxRPM = initialRPM
	}
	minRPM := initialRPM * 0.1
	if minRPM < 1 {
		minRPM = 1
	}
	recovery := initialRPM * 0.05
	if recovery < 1 {
		recovery = 1
	}
	burst := int(initialRPM)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		next:        next,
		limiter:     rate.NewLimiter(rate.Limit(initialRPM/60.0), burst),
		currentRPM:  initialRPM,
		minRPM:      minRPM,
		maxRPM:      maxRPM,
		recoveryRPM: recovery,
	}
}

// Predict waits for rate-limiter capacity, delegates to the wrapped
// Predictor, and adjusts the budget based on whether the call failed with a
// predictor-level failure.
func (l *Limiter) Predict(ctx context.Context, prompt string, temperature float64) (planner.Prediction, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, planner.NewWithCause(planner.KindPredictorFailure, "rate limiter wait canceled", err)
	}
	prediction, err := l.next.Predict(ctx, prompt, temperature)
	l.observe(err)
	return prediction, err
}

func (l *Limiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	var plannerErr *planner.Error
	if errors.As(err, &plannerErr) && plannerErr.Kind == planner.KindPredictorFailure {
		l.backoff()
	}
}

func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.currentRPM * 0.5
	if next < l.minRPM {
		next = l.minRPM
	}
	l.setRate(next)
}

func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.currentRPM + l.recoveryRPM
	if next > l.maxRPM {
		next = l.maxRPM
	}
	l.setRate(next)
}

// setRate updates currentRPM and the underlying limiter. Callers must hold
// l.mu.
func (l *Limiter) setRate(rpm float64) {
	if rpm == l.currentRPM {
		return
	}
	l.currentRPM = rpm
	l.limiter.SetLimit(rate.Limit(rpm / 60.0))
	burst := int(rpm)
	if burst < 1 {
		burst = 1
	}
	l.limiter.SetBurst(burst)
}
