package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"storefront-service/apperrors"
	"storefront-service/database"
	"storefront-service/logger"
	"storefront-service/repository"

	"go.uber.org/zap"
)

// HealthService checks that the order store is reachable.
type HealthService interface {
	Authorized(authHeader string) bool
	Check(ctx context.Context) *apperrors.Error
}

type healthServiceImpl struct {
	repo   repository.OrderRepository
	secret string
	logger *zap.Logger
}

func NewHealthService(repo repository.OrderRepository, secret string, logger *zap.Logger) HealthService {
	return &healthServiceImpl{repo: repo, secret: secret, logger: logger}
}

// Authorized compares the Authorization header against the configured
// bearer secret. With no secret configured nothing is authorized.
func (s *healthServiceImpl) Authorized(authHeader string) bool {
	if s.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(authHeader), []byte("Bearer "+s.secret)) == 1
}

func (s *healthServiceImpl) Check(ctx context.Context) *apperrors.Error {
	err := s.repo.Ping(ctx)
	if err == nil {
		return nil
	}
	logger.For(ctx, s.logger).Error("Health check failed", zap.Error(err))
	if errors.Is(err, repository.ErrStorageUnavailable) {
		return apperrors.New(apperrors.KindConfig, http.StatusInternalServerError, database.NotConfiguredHint, err)
	}
	return apperrors.Storage(err.Error(), err)
}
