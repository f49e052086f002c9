package service

import (
	"context"
	"fmt"

	"Meridian/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// AdmissionService exposes administrative control over the rate limiters.
// The limiters themselves run in middleware; this service only handles the
// manual escape hatches.
type AdmissionService struct {
	api    *biz.APILimiter
	auth   *biz.AuthLimiter
	logger *log.Helper
}

// NewAdmissionService creates the admission admin service.
func NewAdmissionService(api *biz.APILimiter, auth *biz.AuthLimiter, logger log.Logger) *AdmissionService {
	return &AdmissionService{
		api:    api,
		auth:   auth,
		logger: log.NewHelper(logger),
	}
}

// Reset clears the counter and block for key under the named policy. Used
// by operators to unblock a legitimate client caught by the auth cooldown.
func (s *AdmissionService) Reset(ctx context.Context, policy, key string) error {
	var ctrl *biz.AdmissionController
	switch policy {
	case "api":
		ctrl = s.api.AdmissionController
	case "auth":
		ctrl = s.auth.AdmissionController
	default:
		return fmt.Errorf("unknown rate limit policy: %q", policy)
	}

	if err := ctrl.Reset(ctx, key); err != nil {
		s.logger.Errorw("failed to reset rate limit", "policy", policy, "key", key, "error", err)
		return err
	}
	s.logger.Infow("rate limit reset", "policy", policy, "key", key)
	return nil
}
