// Command import-trigger fires the import pipeline against a running
// instance and prints each run report. Useful as a poor man's scheduler and
// for smoke-testing idempotency: the second run should report inserted=0.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type runReport struct {
	RunID        string `json:"run_id"`
	TotalFetched int    `json:"total_fetched"`
	Extracted    int    `json:"extracted"`
	Inserted     int    `json:"inserted"`
	SkipReason   string `json:"skip_reason"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the events agent")
	token := flag.String("token", "", "Admin token (X-Run-Token)")
	runs := flag.Int("n", 1, "Number of runs to trigger")
	rps := flag.Float64("rps", 0.2, "Trigger rate limit in runs per second")
	flag.Parse()

	if *token == "" {
		log.Fatal("missing -token")
	}

	ctx := context.Background()
	limiter := rate.NewLimiter(rate.Limit(*rps), 1)
	client := &http.Client{Timeout: 2 * time.Minute}

	for i := 0; i < *runs; i++ {
		if err := limiter.Wait(ctx); err != nil {
			log.Fatal(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, *baseURL+"/run", nil)
		if err != nil {
			log.Fatal(err)
		}
		req.Header.Set("X-Run-Token", *token)

		resp, err := client.Do(req)
		if err != nil {
			log.Fatalf("run %d: %v", i+1, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			log.Fatalf("run %d: unexpected status %d", i+1, resp.StatusCode)
		}

		var report runReport
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			resp.Body.Close()
			log.Fatalf("run %d: decode report: %v", i+1, err)
		}
		resp.Body.Close()

		fmt.Printf("run %d (%s): fetched=%d parsed=%d inserted=%d",
			i+1, report.RunID, report.TotalFetched, report.Extracted, report.Inserted)
		if report.SkipReason != "" {
			fmt.Printf(" skip_reason=%q", report.SkipReason)
		}
		fmt.Println()
	}
}
