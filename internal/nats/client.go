package nats

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"empresa-service/internal/models"
)

// Event types
const (
	EventEmpresaCreated = "empresa.created"
	EventWizardFinished = "empresa.wizard.finished"
)

// EmpresaCreatedEvent is published when the wizard materializes a new tenant
type EmpresaCreatedEvent struct {
	EventType  string    `json:"event_type"`
	EmpresaID  string    `json:"empresa_id"`
	TipoPessoa string    `json:"tipo_pessoa"`
	Nome       string    `json:"nome"`
	Subdominio string    `json:"subdominio"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// WizardFinishedEvent is published for every finish attempt, successful or not
type WizardFinishedEvent struct {
	EventType       string    `json:"event_type"`
	SessionKey      string    `json:"session_key"`
	EmpresaID       string    `json:"empresa_id,omitempty"`
	Outcome         string    `json:"outcome"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// Client wraps the NATS connection
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewClient connects to NATS with reconnect handling and ensures the tenant
// events stream exists
func NewClient(url string) (*Client, error) {
	log.Printf("[NATS] Connecting to %s", url)

	opts := []nats.Option{
		nats.Name("empresa-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[NATS] Disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:        "EMPRESA_EVENTS",
		Description: "Stream for tenant lifecycle events",
		Subjects:    []string{"empresa.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour * 7,
		MaxMsgs:     100000,
		Discard:     nats.DiscardOld,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		log.Printf("[NATS] Warning: Could not create stream (may already exist): %v", err)
	}

	log.Printf("[NATS] Connected successfully to %s", url)
	return &Client{conn: conn, js: js}, nil
}

// Close drains and closes the connection
func (c *Client) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
	}
}

// PublishEmpresaCreated publishes the tenant created event
func (c *Client) PublishEmpresaCreated(empresa *models.Empresa) error {
	if c == nil || c.js == nil {
		return fmt.Errorf("NATS client not initialized")
	}

	event := EmpresaCreatedEvent{
		EventType:  EventEmpresaCreated,
		EmpresaID:  empresa.ID.String(),
		TipoPessoa: empresa.TipoPessoa,
		Nome:       empresa.DisplayName(),
		Subdominio: empresa.Subdominio,
		Status:     empresa.Status,
		Timestamp:  time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.js.Publish(EventEmpresaCreated, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", EventEmpresaCreated, err)
	}
	return nil
}

// PublishWizardFinished publishes the finish-attempt event
func (c *Client) PublishWizardFinished(sessionKey string, empresaID uuid.UUID, outcome string, durationSeconds float64) error {
	if c == nil || c.js == nil {
		return fmt.Errorf("NATS client not initialized")
	}

	event := WizardFinishedEvent{
		EventType:       EventWizardFinished,
		SessionKey:      sessionKey,
		Outcome:         outcome,
		DurationSeconds: durationSeconds,
		Timestamp:       time.Now().UTC(),
	}
	if empresaID != uuid.Nil {
		event.EmpresaID = empresaID.String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.js.Publish(EventWizardFinished, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", EventWizardFinished, err)
	}
	return nil
}
