package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"briefsmith/internal/brief"
	"briefsmith/internal/config"
	"briefsmith/internal/logging"
	"briefsmith/internal/services"
)

// PacketDelivery is the webhook body for one packet send.
type PacketDelivery struct {
	SessionID     string       `json:"sessionId"`
	To            string       `json:"to"`
	From          string       `json:"from,omitempty"`
	Subject       string       `json:"subject"`
	CompanyName   string       `json:"companyName"`
	LeaderName    string       `json:"leaderName"`
	PacketVersion int          `json:"packetVersion"`
	FeedbackPath  string       `json:"feedbackPath"`
	Packet        brief.Packet `json:"packet"`
}

// Deliverer sends interviewee packets.
type Deliverer interface {
	DeliverPacket(ctx context.Context, delivery PacketDelivery) error
}

// DeliveryError reports a non-2xx webhook response.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery webhook returned %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the response code for retry classification.
func (e *DeliveryError) HTTPStatus() int { return e.StatusCode }

// NewDeliverer returns the webhook deliverer, or a deliverer that only logs
// the send when no webhook is configured.
func NewDeliverer(cfg *config.Config, logger *slog.Logger) Deliverer {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "delivery")
	if cfg == nil || strings.TrimSpace(cfg.Delivery.WebhookURL) == "" {
		return logDeliverer{logger: logger}
	}
	timeout := time.Duration(cfg.Delivery.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &webhookDeliverer{
		endpoint: strings.TrimSpace(cfg.Delivery.WebhookURL),
		from:     cfg.Delivery.FromAddress,
		client:   &http.Client{Timeout: timeout},
	}
}

type webhookDeliverer struct {
	endpoint string
	from     string
	client   *http.Client
}

func (w *webhookDeliverer) DeliverPacket(ctx context.Context, delivery PacketDelivery) error {
	if strings.TrimSpace(delivery.To) == "" {
		return fmt.Errorf("%w: packet delivery requires a recipient", services.ErrValidation)
	}
	if delivery.From == "" {
		delivery.From = w.from
	}
	body, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("encode packet delivery: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build delivery request: %w", services.ErrConfiguration, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s-packet-%d", delivery.SessionID, delivery.PacketVersion))

	resp, err := w.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "", "deliver packet", "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type logDeliverer struct {
	logger *slog.Logger
}

func (l logDeliverer) DeliverPacket(ctx context.Context, delivery PacketDelivery) error {
	if strings.TrimSpace(delivery.To) == "" {
		return fmt.Errorf("%w: packet delivery requires a recipient", services.ErrValidation)
	}
	logging.WithContext(ctx, l.logger).Info("packet delivery webhook not configured; logged only",
		logging.Session(delivery.SessionID),
		logging.String("to", delivery.To),
		logging.Int("packet_version", delivery.PacketVersion),
	)
	return nil
}
