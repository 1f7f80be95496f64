package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	webhookMaxAttempts    = 3
	webhookAttemptTimeout = 10 * time.Second
	webhookRetryBackoff   = 2 * time.Second

	signatureHeader = "X-Settlement-Signature"
)

// HTTPClient abstracts the outbound HTTP client for webhook delivery.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// settlementEvent is the JSON body delivered to the merchant endpoint.
type settlementEvent struct {
	Event          string    `json:"event"`
	SessionID      uuid.UUID `json:"session_id"`
	Payer          uuid.UUID `json:"payer"`
	Recipient      uuid.UUID `json:"recipient"`
	PreferredAsset string    `json:"preferred_asset"`
	GrossSettled   int64     `json:"gross_settled,omitempty"`
	Fee            int64     `json:"fee,omitempty"`
	NetToRecipient int64     `json:"net_to_recipient,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// WebhookServiceImpl implements ports.WebhookService: async delivery of
// settlement events to the merchant's configured endpoint, signed with the
// registry's webhook secret so the merchant can authenticate the source.
type WebhookServiceImpl struct {
	registryRepo ports.RegistryRepository
	webhookRepo  ports.WebhookRepository
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	log          zerolog.Logger
}

// NewWebhookService creates a new WebhookServiceImpl.
func NewWebhookService(
	registryRepo ports.RegistryRepository,
	webhookRepo ports.WebhookRepository,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		registryRepo: registryRepo,
		webhookRepo:  webhookRepo,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		log:          log,
	}
}

// NotifySettled delivers a session.settled event with the settlement amounts.
func (s *WebhookServiceImpl) NotifySettled(ctx context.Context, session *domain.PaymentSession, receipt *domain.SettlementReceipt) error {
	return s.enqueue(ctx, session, settlementEvent{
		Event:          "session.settled",
		SessionID:      session.ID,
		Payer:          session.Payer,
		Recipient:      session.Recipient,
		PreferredAsset: session.PreferredAsset,
		GrossSettled:   receipt.GrossSettled,
		Fee:            receipt.Fee,
		NetToRecipient: receipt.NetToRecipient,
		OccurredAt:     receipt.SettledAt,
	})
}

// NotifyCancelled delivers a session.cancelled event.
func (s *WebhookServiceImpl) NotifyCancelled(ctx context.Context, session *domain.PaymentSession) error {
	return s.enqueue(ctx, session, settlementEvent{
		Event:          "session.cancelled",
		SessionID:      session.ID,
		Payer:          session.Payer,
		Recipient:      session.Recipient,
		PreferredAsset: session.PreferredAsset,
		OccurredAt:     session.UpdatedAt,
	})
}

func (s *WebhookServiceImpl) enqueue(ctx context.Context, session *domain.PaymentSession, event settlementEvent) error {
	registry, err := s.registryRepo.GetByOwner(ctx, session.Recipient)
	if err != nil {
		return fmt.Errorf("fetch registry: %w", err)
	}
	if registry == nil || registry.WebhookURL == nil || *registry.WebhookURL == "" {
		// No endpoint configured; nothing to deliver.
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	entry := &domain.WebhookDeliveryLog{
		ID:         uuid.New(),
		SessionID:  session.ID,
		Recipient:  session.Recipient,
		WebhookURL: *registry.WebhookURL,
		Payload:    string(payload),
		Status:     domain.WebhookStatusPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.webhookRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("persist delivery log: %w", err)
	}

	go s.deliver(entry, registry.WebhookSecret, payload)
	return nil
}

// deliver attempts delivery with bounded retries, updating the persisted log
// after each attempt. Runs detached from the request lifecycle.
func (s *WebhookServiceImpl) deliver(entry *domain.WebhookDeliveryLog, secret string, payload []byte) {
	signature := s.sigSvc.Sign(secret, string(payload))

	for attempt := 1; attempt <= webhookMaxAttempts; attempt++ {
		entry.Attempt = attempt

		status, err := s.post(entry.WebhookURL, payload, signature)
		entry.HTTPStatus = status
		if err == nil && *status >= 200 && *status < 300 {
			entry.Status = domain.WebhookStatusDelivered
			entry.LastError = nil
			entry.NextRetryAt = nil
			s.persist(entry)
			s.log.Info().
				Str("session_id", entry.SessionID.String()).
				Int("attempt", attempt).
				Msg("settlement webhook delivered")
			return
		}

		msg := "non-2xx response"
		if err != nil {
			msg = err.Error()
		}
		entry.LastError = &msg

		if attempt < webhookMaxAttempts {
			next := time.Now().UTC().Add(webhookRetryBackoff * time.Duration(attempt))
			entry.NextRetryAt = &next
			s.persist(entry)
			time.Sleep(time.Until(next))
			continue
		}

		entry.Status = domain.WebhookStatusFailed
		entry.NextRetryAt = nil
		s.persist(entry)
		s.log.Warn().
			Str("session_id", entry.SessionID.String()).
			Str("url", entry.WebhookURL).
			Msg("settlement webhook delivery failed after retries")
	}
}

func (s *WebhookServiceImpl) post(url string, payload []byte, signature string) (*int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return &resp.StatusCode, nil
}

func (s *WebhookServiceImpl) persist(entry *domain.WebhookDeliveryLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry.UpdatedAt = time.Now().UTC()
	if err := s.webhookRepo.Update(ctx, entry); err != nil {
		s.log.Error().Err(err).
			Str("session_id", entry.SessionID.String()).
			Msg("failed to update webhook delivery log")
	}
}
