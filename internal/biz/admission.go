package biz

import (
	"context"
	"strings"
	"time"

	"Meridian/internal/conf"
	"Meridian/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Policy is one points-per-window admission quota. A non-zero BlockDuration
// turns quota exhaustion into a cooldown that outlives the window reset,
// which is what protects credential endpoints from stuffing attacks.
type Policy struct {
	Name          string
	Points        int64
	Window        time.Duration
	BlockDuration time.Duration
}

// AdmissionController enforces a Policy against the shared counter store.
// One instance serves one policy; middleware binds an instance to a
// key-extraction function.
type AdmissionController struct {
	policy Policy
	repo   AdmissionRepo
	sink   metrics.Sink
	logger *log.Helper
}

// NewAdmissionController creates a controller for the given policy.
func NewAdmissionController(policy Policy, repo AdmissionRepo, sink metrics.Sink, logger log.Logger) *AdmissionController {
	return &AdmissionController{
		policy: policy,
		repo:   repo,
		sink:   sink,
		logger: log.NewHelper(logger),
	}
}

// Policy returns the controller's configuration.
func (a *AdmissionController) Policy() Policy { return a.policy }

// Consume spends cost points from key's budget. It returns
// *RateLimitExceededError with retry guidance when the budget is exhausted
// or the key is blocked. Store errors propagate to the caller: an admission
// decision is never silently granted on infrastructure failure.
func (a *AdmissionController) Consume(ctx context.Context, key string, cost int64) error {
	if cost <= 0 {
		cost = 1
	}

	if a.policy.BlockDuration > 0 {
		remaining, err := a.repo.BlockRemaining(ctx, a.policy.Name, key)
		if err != nil {
			return err
		}
		if remaining > 0 {
			a.sink.RateLimitRejected(a.policy.Name)
			return &RateLimitExceededError{
				Policy:       a.policy.Name,
				Limit:        a.policy.Points,
				Current:      a.policy.Points,
				MsBeforeNext: remaining.Milliseconds(),
			}
		}
	}

	count, ttl, err := a.repo.Consume(ctx, a.policy.Name, key, cost, a.policy.Window)
	if err != nil {
		return err
	}

	if count <= a.policy.Points {
		return nil
	}

	msBeforeNext := ttl.Milliseconds()
	if a.policy.BlockDuration > 0 {
		if err := a.repo.Block(ctx, a.policy.Name, key, a.policy.BlockDuration); err != nil {
			// The rejection stands either way; the block is an extra penalty.
			a.logger.Warnw("failed to set admission block",
				"policy", a.policy.Name,
				"key", key,
				"error", err)
		} else {
			msBeforeNext = a.policy.BlockDuration.Milliseconds()
		}
	}

	a.sink.RateLimitRejected(a.policy.Name)
	a.logger.Warnw("admission denied",
		"policy", a.policy.Name,
		"key", key,
		"current", count,
		"limit", a.policy.Points,
		"ms_before_next", msBeforeNext)

	return &RateLimitExceededError{
		Policy:       a.policy.Name,
		Limit:        a.policy.Points,
		Current:      count,
		MsBeforeNext: msBeforeNext,
	}
}

// Reset clears key's counter and block. Administrative escape hatch.
func (a *AdmissionController) Reset(ctx context.Context, key string) error {
	return a.repo.Reset(ctx, a.policy.Name, key)
}

// RateKey joins key dimensions into a composite admission key, e.g.
// RateKey(tenant, ip) or RateKey(ip, username). Combining dimensions keeps
// one of them from being rotated to evade the limit on the other.
func RateKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// APILimiter is the general request-admission controller.
type APILimiter struct {
	*AdmissionController
}

// NewAPILimiter builds the API policy controller from configuration.
func NewAPILimiter(c *conf.RateLimit, repo AdmissionRepo, sink metrics.Sink, logger log.Logger) *APILimiter {
	return &APILimiter{
		AdmissionController: NewAdmissionController(Policy{
			Name:   "api",
			Points: int64(c.Api.Points),
			Window: c.Api.Window.AsDuration(),
		}, repo, sink, logger),
	}
}

// AuthLimiter is the stricter credential-endpoint controller.
type AuthLimiter struct {
	*AdmissionController
}

// NewAuthLimiter builds the auth policy controller from configuration.
func NewAuthLimiter(c *conf.RateLimit, repo AdmissionRepo, sink metrics.Sink, logger log.Logger) *AuthLimiter {
	return &AuthLimiter{
		AdmissionController: NewAdmissionController(Policy{
			Name:          "auth",
			Points:        int64(c.Auth.Points),
			Window:        c.Auth.Window.AsDuration(),
			BlockDuration: c.Auth.BlockDuration.AsDuration(),
		}, repo, sink, logger),
	}
}
