package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RegistryServiceImpl implements ports.RegistryService.
type RegistryServiceImpl struct {
	registryRepo ports.RegistryRepository
	log          zerolog.Logger
}

// NewRegistryService creates a new RegistryServiceImpl.
func NewRegistryService(registryRepo ports.RegistryRepository, log zerolog.Logger) *RegistryServiceImpl {
	return &RegistryServiceImpl{registryRepo: registryRepo, log: log}
}

// Register creates the caller's merchant registry. One registry per owner.
func (s *RegistryServiceImpl) Register(ctx context.Context, req ports.RegisterMerchantRequest) (*domain.MerchantRegistry, error) {
	if reason, ok := domain.ValidateConfiguration(req.AcceptedAssets, req.PreferredAsset); !ok {
		return nil, apperror.ErrInvalidConfiguration(reason)
	}

	existing, err := s.registryRepo.GetByOwner(ctx, req.Owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check registry: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrInvalidConfiguration("registry already exists for owner")
	}

	secret, err := generateWebhookSecret()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}

	now := time.Now().UTC()
	registry := &domain.MerchantRegistry{
		Owner:          req.Owner,
		AcceptedAssets: req.AcceptedAssets,
		PreferredAsset: req.PreferredAsset,
		WebhookURL:     req.WebhookURL,
		WebhookSecret:  secret,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.registryRepo.Create(ctx, registry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create registry: %w", err))
	}

	s.log.Info().
		Str("owner", req.Owner.String()).
		Strs("accepted_assets", req.AcceptedAssets).
		Str("preferred_asset", req.PreferredAsset).
		Msg("merchant registry created")

	return registry, nil
}

// Update replaces the accepted set and preferred asset. Only the owner may
// call; open sessions are unaffected because they snapshot the registry at
// creation time.
func (s *RegistryServiceImpl) Update(ctx context.Context, req ports.UpdateRegistryRequest) (*domain.MerchantRegistry, error) {
	if req.Caller != req.Owner {
		return nil, apperror.ErrUnauthorized()
	}
	if reason, ok := domain.ValidateConfiguration(req.AcceptedAssets, req.PreferredAsset); !ok {
		return nil, apperror.ErrInvalidConfiguration(reason)
	}

	registry, err := s.registryRepo.GetByOwner(ctx, req.Owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch registry: %w", err))
	}
	if registry == nil {
		return nil, apperror.ErrNotFound("registry")
	}

	registry.AcceptedAssets = req.AcceptedAssets
	registry.PreferredAsset = req.PreferredAsset
	if req.WebhookURL != nil {
		registry.WebhookURL = req.WebhookURL
	}
	registry.UpdatedAt = time.Now().UTC()

	if err := s.registryRepo.Update(ctx, registry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update registry: %w", err))
	}

	s.log.Info().
		Str("owner", req.Owner.String()).
		Str("preferred_asset", req.PreferredAsset).
		Msg("merchant registry updated")

	return registry, nil
}

// Get fetches a registry by owner.
func (s *RegistryServiceImpl) Get(ctx context.Context, owner uuid.UUID) (*domain.MerchantRegistry, error) {
	registry, err := s.registryRepo.GetByOwner(ctx, owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch registry: %w", err))
	}
	if registry == nil {
		return nil, apperror.ErrNotFound("registry")
	}
	return registry, nil
}

func generateWebhookSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
