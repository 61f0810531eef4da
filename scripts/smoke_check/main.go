package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Auth     bool   `json:"auth"`
	Contains string `json:"contains"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target   target
	Status   int
	Passed   bool
	Error    error
	Duration time.Duration
}

// defaultTargets checks the probes and that protected routes reject anonymous callers.
var defaultTargets = []target{
	{Method: http.MethodGet, Path: "/health", Status: http.StatusOK, Contains: `"ok"`, Critical: true},
	{Method: http.MethodGet, Path: "/ready", Status: http.StatusOK, Contains: `"ready"`, Critical: true},
	{Method: http.MethodGet, Path: "/metrics", Status: http.StatusOK, Contains: "http_requests_total"},
	{Method: http.MethodGet, Path: "/api/v1/classes", Status: http.StatusUnauthorized, Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/certificates/download", Status: http.StatusBadRequest},
	{Method: http.MethodGet, Path: "/api/v1/auth/me", Status: http.StatusOK, Auth: true},
	{Method: http.MethodGet, Path: "/api/v1/classes", Status: http.StatusOK, Auth: true},
	{Method: http.MethodGet, Path: "/api/v1/notifications/unread-count", Status: http.StatusOK, Auth: true},
}

func main() {
	var (
		base        string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "Tutorly API base URL")
	flag.StringVar(&targetsPath, "targets", "", "Optional JSON targets file; built-in checks are used when empty")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets := defaultTargets
	if targetsPath != "" {
		loaded, err := loadTargets(targetsPath)
		if err != nil {
			log.Fatalf("failed to load targets: %v", err)
		}
		targets = loaded
	}
	token := os.Getenv("SMOKE_ACCESS_TOKEN")

	client := &http.Client{Timeout: timeout}
	var (
		results  []result
		breaking int
		skipped  int
	)
	for _, t := range targets {
		if t.Auth && token == "" {
			skipped++
			continue
		}
		res := check(client, base, token, t)
		if !res.Passed && t.Critical {
			breaking++
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Critical failures: %d, skipped (no SMOKE_ACCESS_TOKEN): %d\n", breaking, skipped)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func check(client *http.Client, base, token string, tgt target) result {
	res := result{Target: tgt}
	if client == nil {
		res.Error = errors.New("nil client")
		return res
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		res.Error = err
		return res
	}
	if tgt.Auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}

	expected := tgt.Status
	if expected == 0 {
		expected = http.StatusOK
	}
	res.Passed = res.Status == expected && (tgt.Contains == "" || strings.Contains(string(body), tgt.Contains))
	return res
}

func printReport(results []result) {
	fmt.Println("Smoke Check Report")
	fmt.Println("==================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Status: %d (expected %d, %s) | Critical: %t\n", res.Status, res.Target.Status, res.Duration, res.Target.Critical)
	}
}
