package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	baseURL = "http://localhost:8080/api/v1"

	sellerKey    = "test-seller-key"
	sellerSecret = "test-seller-secret"
	buyerKey     = "test-buyer-key"
	buyerSecret  = "test-buyer-secret"
)

var underlyings = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}

type routeStats struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration
	errors    map[string]int
}

func newRouteStats() *routeStats {
	return &routeStats{
		latencies: make(map[string][]time.Duration),
		errors:    make(map[string]int),
	}
}

func (s *routeStats) record(route string, d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies[route] = append(s.latencies[route], d)
	if failed {
		s.errors[route]++
	}
}

func (s *routeStats) print() {
	s.mu.Lock()
	defer s.mu.Unlock()

	routes := make([]string, 0, len(s.latencies))
	for route := range s.latencies {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	fmt.Println()
	fmt.Println("Route latency summary")
	fmt.Println("---------------------")
	for _, route := range routes {
		ds := s.latencies[route]
		sorted := make([]time.Duration, len(ds))
		copy(sorted, ds)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total time.Duration
		for _, d := range sorted {
			total += d
		}
		mean := total / time.Duration(len(sorted))
		median := sorted[len(sorted)/2]
		p95 := sorted[int(math.Ceil(float64(len(sorted))*0.95))-1]
		p99 := sorted[int(math.Ceil(float64(len(sorted))*0.99))-1]

		fmt.Printf("%-40s n=%-5d errs=%-4d min=%-10s mean=%-10s median=%-10s p95=%-10s p99=%-10s max=%s\n",
			route, len(sorted), s.errors[route],
			sorted[0].Round(time.Microsecond), mean.Round(time.Microsecond),
			median.Round(time.Microsecond), p95.Round(time.Microsecond),
			p99.Round(time.Microsecond), sorted[len(sorted)-1].Round(time.Microsecond))
	}
}

type simulationClient struct {
	http  *http.Client
	token string
	stats *routeStats
}

func newSimulationClient(stats *routeStats) *simulationClient {
	return &simulationClient{
		http:  &http.Client{Timeout: 10 * time.Second},
		stats: stats,
	}
}

func (c *simulationClient) authenticate(apiKey, apiSecret string) error {
	body := map[string]string{"api_key": apiKey, "api_secret": apiSecret}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := c.do("POST", "/auth/token", body, &resp); err != nil {
		return err
	}
	if !resp.Success || resp.Data.Token == "" {
		return fmt.Errorf("authentication failed for %s", apiKey)
	}
	c.token = resp.Data.Token
	return nil
}

func (c *simulationClient) do(method, path string, body, out interface{}) error {
	var payload *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewBuffer(b)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	route := method + " " + routeLabel(path)
	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.stats.record(route, elapsed, true)
		return err
	}
	defer resp.Body.Close()

	failed := resp.StatusCode >= 400
	c.stats.record(route, elapsed, failed)

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}
	if failed {
		return fmt.Errorf("%s: status %d", route, resp.StatusCode)
	}
	return nil
}

// routeLabel collapses contract IDs out of paths so latencies group by route.
func routeLabel(path string) string {
	parts := []struct{ prefix, suffix, label string }{
		{"/contracts/", "/purchase", "/contracts/:id/purchase"},
		{"/contracts/", "/exercise", "/contracts/:id/exercise"},
		{"/contracts/", "/delist", "/contracts/:id/delist"},
		{"/internal/settlement/", "", "/internal/settlement/:id"},
	}
	for _, p := range parts {
		if len(path) > len(p.prefix) && path[:len(p.prefix)] == p.prefix {
			if p.suffix == "" || (len(path) >= len(p.suffix) && path[len(path)-len(p.suffix):] == p.suffix) {
				return p.label
			}
		}
	}
	return path
}

type contractEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		ContractID string `json:"contract_id"`
		Status     string `json:"status"`
	} `json:"data"`
}

// runLifecycle drives one contract through its full life: list, purchase,
// a run of settlements under a drifting price, then exercise.
func runLifecycle(seller, buyer, internal *simulationClient, underlying string, settlements int) error {
	createReq := map[string]interface{}{
		"kind":            0,
		"underlying":      underlying,
		"initiation_date": time.Now().Unix(),
		"premium":         5_000_000,
		"strike":          1_000_000_000,
		"initial_margin":  100_000_000,
		"is_test":         true,
	}
	var created contractEnvelope
	if err := seller.do("POST", "/contracts", createReq, &created); err != nil {
		return fmt.Errorf("create %s: %w", underlying, err)
	}
	contractID := created.Data.ContractID
	log.Info().Str("contract_id", contractID).Str("underlying", underlying).Msg("Contract listed")

	if err := buyer.do("POST", "/contracts/"+contractID+"/purchase", nil, nil); err != nil {
		return fmt.Errorf("purchase %s: %w", contractID, err)
	}

	// Walk the asset price around the reference so both parties win and
	// lose across the run. Moves stay far from the margin-call band.
	assetPrice := uint64(50_000_000)
	refPrice := uint64(50_000_000)
	for i := 0; i < settlements; i++ {
		if i%2 == 0 {
			assetPrice += 1_000_000
		} else {
			assetPrice -= 500_000
		}
		settleReq := map[string]uint64{
			"asset_price":     assetPrice,
			"reference_price": refPrice,
		}
		var settled struct {
			Success bool `json:"success"`
			Data    struct {
				Status      string `json:"status"`
				Transferred uint64 `json:"transferred"`
			} `json:"data"`
		}
		if err := internal.do("POST", "/internal/settlement/"+contractID, settleReq, &settled); err != nil {
			return fmt.Errorf("settle %s: %w", contractID, err)
		}
		if settled.Data.Status == "MARGIN_CALLED" {
			log.Warn().Str("contract_id", contractID).Msg("Contract margin called, ending lifecycle early")
			return nil
		}
	}

	exerciseReq := map[string]uint64{
		"asset_price":     assetPrice,
		"reference_price": refPrice,
	}
	if err := buyer.do("POST", "/contracts/"+contractID+"/exercise", exerciseReq, nil); err != nil {
		return fmt.Errorf("exercise %s: %w", contractID, err)
	}
	log.Info().Str("contract_id", contractID).Msg("Contract exercised")
	return nil
}

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	settlements := flag.Int("settlements", 10, "settlements per contract before exercise")
	flag.Parse()

	stats := newRouteStats()

	seller := newSimulationClient(stats)
	buyer := newSimulationClient(stats)
	if err := seller.authenticate(sellerKey, sellerSecret); err != nil {
		log.Fatal().Err(err).Msg("Seller authentication failed")
	}
	if err := buyer.authenticate(buyerKey, buyerSecret); err != nil {
		log.Fatal().Err(err).Msg("Buyer authentication failed")
	}
	// The internal surface accepts any valid token.
	internal := newSimulationClient(stats)
	internal.token = seller.token

	// Fund both parties well past premium plus margin for every contract.
	for _, c := range []*simulationClient{seller, buyer} {
		deposit := map[string]uint64{"amount": 10_000_000_000}
		if err := c.do("POST", "/accounts/deposit", deposit, nil); err != nil {
			log.Fatal().Err(err).Msg("Deposit failed")
		}
	}

	var wg sync.WaitGroup
	for _, underlying := range underlyings {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if err := runLifecycle(seller, buyer, internal, u, *settlements); err != nil {
				log.Error().Err(err).Str("underlying", u).Msg("Lifecycle failed")
			}
		}(underlying)
	}
	wg.Wait()

	for _, c := range []*simulationClient{seller, buyer} {
		var resp struct {
			Success bool `json:"success"`
			Data    struct {
				Balance uint64 `json:"balance"`
			} `json:"data"`
		}
		if err := c.do("GET", "/accounts/balance", nil, &resp); err != nil {
			log.Error().Err(err).Msg("Balance check failed")
			continue
		}
		log.Info().Uint64("balance", resp.Data.Balance).Msg("Final balance")
	}

	stats.print()
}
