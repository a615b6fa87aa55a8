// Package main implements a smoke test that drives a full wizard run against
// a live instance: start a session, walk all seven steps with a minimal valid
// PJ payload, and finish. Exits non-zero when any step is rejected or the
// finish does not succeed.
//
// Usage:
//
//	./wizard-smoke                                  # Run against localhost
//	./wizard-smoke --url=http://empresa-svc:8090    # Run against a remote instance
//	./wizard-smoke --keep                           # Leave the created tenant in place
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Errors  map[string]string      `json:"errors"`
	Data    map[string]interface{} `json:"data"`
}

type smokeClient struct {
	baseURL    string
	httpClient *http.Client
}

func main() {
	baseURL := flag.String("url", "http://localhost:8090", "Base URL of the empresa-service instance")
	keep := flag.Bool("keep", false, "Do not warn about the tenant the smoke run creates")
	flag.Parse()

	client := &smokeClient{
		baseURL:    *baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Unique subdomain per run so repeated smokes never collide
	subdominio := fmt.Sprintf("smoke-%d", time.Now().UnixNano()%1_000_000_000)

	sessionKey, err := client.startSession(ctx)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	log.Printf("Session started: %s", sessionKey)

	steps := []map[string]interface{}{
		{
			"tipo_pessoa":  "PJ",
			"razao_social": "Smoke Test Ltda",
			"cnpj":         "12.345.678/0001-99",
		},
		{
			"logradouro": "Rua da Fumaca",
			"numero":     "100",
			"bairro":     "Centro",
			"cidade":     "Sao Paulo",
			"uf":         "SP",
			"cep":        "01000-000",
		},
		{
			"email_principal": "smoke@example.com",
		},
		{},
		{
			"subdominio": subdominio,
			"plano":      "basico",
		},
		{},
	}
	for i, data := range steps {
		if err := client.submitStep(ctx, sessionKey, data); err != nil {
			log.Fatalf("Step %d rejected: %v", i+1, err)
		}
		log.Printf("Step %d accepted", i+1)
	}

	result, err := client.finish(ctx, sessionKey)
	if err != nil {
		log.Fatalf("Finish failed: %v", err)
	}

	outcome, _ := result["outcome"].(string)
	if outcome != "success" {
		log.Printf("Finish outcome: %s (%v)", outcome, result["message"])
		os.Exit(1)
	}

	log.Printf("Tenant created: subdominio=%s empresa_id=%v", subdominio, result["empresa_id"])
	if !*keep {
		log.Printf("Note: smoke tenant %s was left in the database; remove it manually if needed", subdominio)
	}
}

func (c *smokeClient) startSession(ctx context.Context) (string, error) {
	env, err := c.post(ctx, "/api/v1/wizard/sessions", nil)
	if err != nil {
		return "", err
	}
	key, _ := env.Data["session_key"].(string)
	if key == "" {
		return "", fmt.Errorf("response did not contain a session key")
	}
	return key, nil
}

func (c *smokeClient) submitStep(ctx context.Context, sessionKey string, data map[string]interface{}) error {
	path := fmt.Sprintf("/api/v1/wizard/sessions/%s/step", sessionKey)
	_, err := c.post(ctx, path, map[string]interface{}{
		"action": "advance",
		"data":   data,
	})
	return err
}

func (c *smokeClient) finish(ctx context.Context, sessionKey string) (map[string]interface{}, error) {
	path := fmt.Sprintf("/api/v1/wizard/sessions/%s/finish", sessionKey)
	env, err := c.post(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *smokeClient) post(ctx context.Context, path string, payload interface{}) (*envelope, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s returned non-JSON (status %d): %s", path, resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 300 || !env.Success {
		if len(env.Errors) > 0 {
			return nil, fmt.Errorf("%s (status %d): %s %v", path, resp.StatusCode, env.Message, env.Errors)
		}
		return nil, fmt.Errorf("%s (status %d): %s", path, resp.StatusCode, env.Message)
	}
	return &env, nil
}
