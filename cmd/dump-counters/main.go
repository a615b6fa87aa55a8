// Package main implements a maintenance tool that dumps the wizard finish
// counters mirrored in Redis. The in-process metrics store is the primary
// source; the Redis mirror survives restarts and is what this tool reads.
//
// Usage:
//
//	./dump-counters            # Print all wizard counters
//	./dump-counters --json     # Print as JSON
//	./dump-counters --reset    # Print, then delete all counter keys
//
// Environment Variables:
//
//	REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"empresa-service/internal/config"
	"empresa-service/internal/redis"
)

func main() {
	asJSON := flag.Bool("json", false, "Print counters as JSON")
	reset := flag.Bool("reset", false, "Delete all counter keys after printing")
	flag.Parse()

	cfg := config.New()

	client, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counters, err := client.GetAllCounters(ctx)
	if err != nil {
		log.Fatalf("Failed to read counters: %v", err)
	}

	if *asJSON {
		out, err := json.MarshalIndent(counters, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode counters: %v", err)
		}
		fmt.Println(string(out))
	} else {
		if len(counters) == 0 {
			fmt.Println("No wizard counters found")
		}
		names := make([]string, 0, len(counters))
		for name := range counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-40s %d\n", name, counters[name])
		}
	}

	if *reset {
		deleted, err := client.ResetAllCounters(ctx)
		if err != nil {
			log.Printf("Failed to reset counters: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d counter keys\n", deleted)
	}
}
