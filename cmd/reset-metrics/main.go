// Package main implements a maintenance tool that resets the in-process
// wizard metrics store of a running instance through its staff endpoint.
//
// Usage:
//
//	./reset-metrics                                  # Reset metrics on localhost
//	./reset-metrics --url=http://empresa-svc:8090    # Reset a remote instance
//
// Environment Variables:
//
//	STAFF_TOKEN - token for the staff-only endpoint (required)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8090", "Base URL of the empresa-service instance")
	flag.Parse()

	token := os.Getenv("STAFF_TOKEN")
	if token == "" {
		log.Fatal("STAFF_TOKEN environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/internal/wizard/metrics/reset", *baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("X-Staff-Token", token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to call %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("Reset failed with status %d: %s", resp.StatusCode, string(body))
		os.Exit(1)
	}

	fmt.Println("Metrics store reset")
}
