package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"empresa-service/internal/models"
	"empresa-service/internal/services"
)

// NotificationClient handles communication with the notification service.
// Welcome emails are delivered as one batch call after a successful finish.
type NotificationClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewNotificationClient creates a new notification service client
func NewNotificationClient(baseURL, apiKey string) *NotificationClient {
	return &NotificationClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// welcomeBatchRequest is the notification service payload
type welcomeBatchRequest struct {
	EmpresaID   string             `json:"empresa_id"`
	EmpresaNome string             `json:"empresa_nome"`
	Subdominio  string             `json:"subdominio"`
	Recipients  []welcomeRecipient `json:"recipients"`
}

type welcomeRecipient struct {
	Email             string `json:"email"`
	Nome              string `json:"nome,omitempty"`
	Password          string `json:"password,omitempty"`
	PasswordGenerated bool   `json:"password_generated"`
}

// SendWelcomeBatch queues welcome emails for the given recipients. Generated
// passwords are included so first-login credentials reach the user.
func (c *NotificationClient) SendWelcomeBatch(ctx context.Context, empresa *models.Empresa, recipients []services.WelcomeEmail) error {
	if len(recipients) == 0 {
		return nil
	}

	payload := welcomeBatchRequest{
		EmpresaID:   empresa.ID.String(),
		EmpresaNome: empresa.DisplayName(),
		Subdominio:  empresa.Subdominio,
	}
	for _, r := range recipients {
		payload.Recipients = append(payload.Recipients, welcomeRecipient{
			Email:             r.Email,
			Nome:              r.Nome,
			Password:          r.Password,
			PasswordGenerated: r.PasswordGenerated,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal welcome batch: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/notifications/welcome-batch", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build welcome batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notification service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}
	return nil
}
