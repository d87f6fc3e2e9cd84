package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/config"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
	"github.com/dcb-treasury/certification-gateway/internal/infrastructure/signature"
	"github.com/google/uuid"
)

// RegisterEndpointCommand registers or re-registers an outbound subscriber.
type RegisterEndpointCommand struct {
	Name     string
	URL      string
	Events   []string
	APIKeyID string
}

// CreateAPIKeyCommand provisions an inbound caller credential.
type CreateAPIKeyCommand struct {
	Name        string
	Permissions []string
	RateLimit   int
	ExpiresAt   *time.Time
}

// AdminService covers the operational surface: webhook endpoint
// registrations, API key management and the audit trail.
type AdminService struct {
	endpoints application.EndpointRepository
	keys      application.APIKeyRepository
	peer      application.PeerClient
	audit     application.AuditLog
	cfg       config.WebhookConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewAdminService(
	endpoints application.EndpointRepository,
	keys application.APIKeyRepository,
	peer application.PeerClient,
	audit application.AuditLog,
	cfg config.WebhookConfig,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		endpoints: endpoints,
		keys:      keys,
		peer:      peer,
		audit:     audit,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterEndpoint upserts by URL: registering the same URL again refreshes
// name and event list but keeps the existing signing secret.
func (s *AdminService) RegisterEndpoint(ctx context.Context, cmd RegisterEndpointCommand) (*domain.WebhookEndpoint, bool, error) {
	if cmd.URL == "" {
		return nil, false, application.NewValidationError("url is required")
	}
	if len(cmd.Events) == 0 {
		cmd.Events = []string{"*"}
	}

	endpoint := &domain.WebhookEndpoint{
		ID:        uuid.New().String(),
		Name:      cmd.Name,
		URL:       cmd.URL,
		Events:    cmd.Events,
		Secret:    domain.NewWebhookSecret(),
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if cmd.APIKeyID != "" {
		endpoint.APIKeyID = &cmd.APIKeyID
	}

	stored, created, err := s.endpoints.Upsert(ctx, endpoint)
	if err != nil {
		return nil, false, application.NewInternalError(err)
	}

	action := "webhook.endpoint.updated"
	if created {
		action = "webhook.endpoint.registered"
	}
	s.record(ctx, action, map[string]any{"url": stored.URL, "events": stored.Events})
	return stored, created, nil
}

func (s *AdminService) ListEndpoints(ctx context.Context) ([]*domain.WebhookEndpoint, error) {
	endpoints, err := s.endpoints.List(ctx)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return endpoints, nil
}

func (s *AdminService) DeleteEndpoint(ctx context.Context, id string) (*domain.WebhookEndpoint, error) {
	endpoint, err := s.endpoints.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrEndpointNotFound) {
			return nil, application.NewNotFoundError("Webhook endpoint")
		}
		return nil, application.NewInternalError(err)
	}
	s.record(ctx, "webhook.endpoint.deleted", map[string]any{"url": endpoint.URL})
	return endpoint, nil
}

// TestEndpoint sends a signed test.ping to the registered URL using the
// endpoint's own secret.
func (s *AdminService) TestEndpoint(ctx context.Context, id string) (*DispatchResult, error) {
	endpoint, err := s.endpoints.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrEndpointNotFound) {
			return nil, application.NewNotFoundError("Webhook endpoint")
		}
		return nil, application.NewInternalError(err)
	}

	now := s.now().UTC()
	event := &domain.WebhookEvent{
		ID:        uuid.New().String(),
		Type:      "test.ping",
		Timestamp: now.Format(time.RFC3339),
		Source:    s.cfg.Source,
		Version:   s.cfg.ProtocolVersion,
		Payload:   []byte(`{"message":"Webhook endpoint test"}`),
	}
	signer := signature.NewSigner(endpoint.Secret, s.cfg.FreshnessWindow)
	sig, err := signer.Sign(event)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	event.Signature = sig

	status, err := s.peer.Deliver(ctx, application.PeerDelivery{
		URL:    endpoint.URL,
		Secret: endpoint.Secret,
		Event:  event,
		Headers: map[string]string{
			"X-DCB-Signature": sig,
			"X-DCB-Event":     event.Type,
			"X-DCB-Timestamp": event.Timestamp,
		},
	})
	if err != nil {
		s.logger.Warn("endpoint test failed", "url", endpoint.URL, "error", err)
		return &DispatchResult{Success: false, Event: event, Error: err.Error()}, nil
	}
	return &DispatchResult{Success: true, Event: event, Status: status}, nil
}

// CreateAPIKey returns the key with its full secret; listings only ever show
// the masked form.
func (s *AdminService) CreateAPIKey(ctx context.Context, cmd CreateAPIKeyCommand) (*domain.APIKey, error) {
	if cmd.Name == "" {
		return nil, application.NewValidationError("name is required")
	}
	if len(cmd.Permissions) == 0 {
		cmd.Permissions = []string{"webhooks:receive"}
	}
	if cmd.RateLimit <= 0 {
		cmd.RateLimit = 100
	}

	key := &domain.APIKey{
		ID:          uuid.New().String(),
		Name:        cmd.Name,
		Key:         domain.NewAPIKeyValue(),
		Secret:      domain.NewAPISecretValue(),
		Permissions: cmd.Permissions,
		RateLimit:   cmd.RateLimit,
		Active:      true,
		CreatedAt:   s.now().UTC(),
		ExpiresAt:   cmd.ExpiresAt,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, application.NewInternalError(err)
	}

	s.record(ctx, "apikey.created", map[string]any{"name": key.Name, "key": key.MaskedKey()})
	return key, nil
}

// ListAPIKeys masks key material and drops secrets.
func (s *AdminService) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	masked := make([]*domain.APIKey, 0, len(keys))
	for _, k := range keys {
		c := *k
		c.Key = c.MaskedKey()
		c.Secret = ""
		masked = append(masked, &c)
	}
	return masked, nil
}

// RevokeAPIKey deactivates without deleting, so audit references survive.
func (s *AdminService) RevokeAPIKey(ctx context.Context, id string) error {
	k, err := s.findKey(ctx, id)
	if err != nil {
		return err
	}

	k.Active = false
	if err := s.keys.Update(ctx, k); err != nil {
		return application.NewInternalError(err)
	}
	s.record(ctx, "apikey.revoked", map[string]any{"name": k.Name})
	return nil
}

// RotateAPIKey replaces the key and secret values in place and returns the
// new material.
func (s *AdminService) RotateAPIKey(ctx context.Context, id string) (*domain.APIKey, error) {
	k, err := s.findKey(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	k.Key = domain.NewAPIKeyValue()
	k.Secret = domain.NewAPISecretValue()
	k.RotatedAt = &now
	if err := s.keys.Update(ctx, k); err != nil {
		return nil, application.NewInternalError(err)
	}
	s.record(ctx, "apikey.rotated", map[string]any{"name": k.Name})
	return k, nil
}

func (s *AdminService) findKey(ctx context.Context, id string) (*domain.APIKey, error) {
	k, err := s.keys.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return nil, application.NewNotFoundError("API key")
		}
		return nil, application.NewInternalError(err)
	}
	return k, nil
}

// ValidateAPIKey resolves a presented key value to its record. Inactive or
// expired keys do not resolve.
func (s *AdminService) ValidateAPIKey(ctx context.Context, value string) (*domain.APIKey, error) {
	key, err := s.keys.FindByKey(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return nil, application.NewAuthenticationError("Invalid API key")
		}
		return nil, application.NewInternalError(err)
	}
	if !key.Active || key.Expired(s.now()) {
		return nil, application.NewAuthenticationError("Invalid API key")
	}
	if err := s.keys.TouchLastUsed(ctx, key.ID, s.now().UTC()); err != nil {
		s.logger.Warn("api key last-used update failed", "key_id", key.ID, "error", err)
	}
	return key, nil
}

// AuditTrail returns the newest entries first, together with the retained
// total.
func (s *AdminService) AuditTrail(ctx context.Context, limit int) ([]*domain.AuditLogEntry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	entries, err := s.audit.List(ctx, limit)
	if err != nil {
		return nil, 0, application.NewInternalError(err)
	}
	total, err := s.audit.Count(ctx)
	if err != nil {
		return nil, 0, application.NewInternalError(err)
	}
	return entries, total, nil
}

func (s *AdminService) record(ctx context.Context, action string, details map[string]any) {
	if err := s.audit.Record(ctx, action, details, "system"); err != nil {
		s.logger.Error("audit record failed", "action", action, "error", err)
	}
}
