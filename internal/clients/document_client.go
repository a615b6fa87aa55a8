package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DocumentClient talks to the document service. The wizard only needs one
// operation: moving uploads parked under a temp token to the finished tenant.
type DocumentClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDocumentClient creates a new document service client
func NewDocumentClient(baseURL string) *DocumentClient {
	return &DocumentClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type consolidateRequest struct {
	TempToken string `json:"temp_token"`
	EmpresaID string `json:"empresa_id"`
}

// ConsolidateTempUploads reassigns uploads made during the wizard to the
// persisted tenant
func (c *DocumentClient) ConsolidateTempUploads(ctx context.Context, tempToken string, empresaID uuid.UUID) error {
	body, err := json.Marshal(consolidateRequest{
		TempToken: tempToken,
		EmpresaID: empresaID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal consolidate request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/documents/consolidate", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build consolidate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call document service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("document service returned status %d", resp.StatusCode)
	}
	return nil
}
