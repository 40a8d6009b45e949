package pricesource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const apifyBaseURL = "https://api.apify.com"

// ApifySource runs an Apify actor that scrapes Amazon product data, then
// reads the price history out of the run's dataset. Runs are asynchronous:
// start, poll until SUCCEEDED, fetch items.
type ApifySource struct {
	token        string
	actorID      string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *slog.Logger
}

func NewApifySource(token, actorID string, logger *slog.Logger) *ApifySource {
	return &ApifySource{
		token:        token,
		actorID:      actorID,
		baseURL:      apifyBaseURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: 3 * time.Second,
		pollTimeout:  60 * time.Second,
		logger:       logger.With("component", "apify"),
	}
}

func (a *ApifySource) Name() string { return "apify" }

type apifyRunData struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

func (a *ApifySource) FetchHistory(ctx context.Context, asin, marketplace string) (*Result, error) {
	if a.token == "" {
		return nil, ErrNotConfigured
	}

	run, err := a.startRun(ctx, asin, marketplace)
	if err != nil {
		return nil, err
	}

	datasetID, err := a.waitForRun(ctx, run)
	if err != nil {
		return nil, err
	}

	items, err := a.fetchItems(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoData
	}

	item := items[0]
	points := apifyHistory(item)

	current, ok := apifyNumber(item["price"])
	if !ok && len(points) > 0 {
		current = points[len(points)-1].Price
	}
	if current <= 0 && len(points) == 0 {
		return nil, ErrNoData
	}

	title, _ := item["title"].(string)

	a.logger.Debug("apify run finished",
		"asin", asin,
		"run_id", run.Data.ID,
		"points", len(points))

	return &Result{
		ASIN:         asin,
		Title:        title,
		CurrentPrice: current,
		Points:       points,
		Source:       "apify",
	}, nil
}

// startRun launches the actor against the product page URL
func (a *ApifySource) startRun(ctx context.Context, asin, marketplace string) (*apifyRunData, error) {
	input := map[string]interface{}{
		"identifiers": []string{ProductURL(asin, marketplace)},
		"country":     strings.ToLower(marketplace),
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actor input: %w", err)
	}

	url := fmt.Sprintf("%s/v2/acts/%s/runs", a.baseURL, a.actorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apify request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusPaymentRequired:
		return nil, ErrQuotaExceeded
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("apify run start returned status %d", resp.StatusCode)
	}

	var run apifyRunData
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, fmt.Errorf("failed to decode run response: %w", err)
	}
	if run.Data.ID == "" {
		return nil, fmt.Errorf("apify run response missing run id")
	}

	return &run, nil
}

// waitForRun polls the run until it succeeds or the poll window closes
func (a *ApifySource) waitForRun(ctx context.Context, run *apifyRunData) (string, error) {
	deadline := time.Now().Add(a.pollTimeout)
	datasetID := run.Data.DefaultDatasetID

	for {
		status, dsID, err := a.runStatus(ctx, run.Data.ID)
		if err != nil {
			return "", err
		}
		if dsID != "" {
			datasetID = dsID
		}

		switch status {
		case "SUCCEEDED":
			if datasetID == "" {
				return "", fmt.Errorf("apify run %s has no dataset", run.Data.ID)
			}
			return datasetID, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return "", fmt.Errorf("apify run %s ended with status %s", run.Data.ID, status)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("apify run %s did not finish within %s", run.Data.ID, a.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

func (a *ApifySource) runStatus(ctx context.Context, runID string) (status, datasetID string, err error) {
	url := fmt.Sprintf("%s/v2/actor-runs/%s", a.baseURL, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("apify status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("apify status returned %d", resp.StatusCode)
	}

	var run apifyRunData
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return "", "", fmt.Errorf("failed to decode status response: %w", err)
	}

	return run.Data.Status, run.Data.DefaultDatasetID, nil
}

func (a *ApifySource) fetchItems(ctx context.Context, datasetID string) ([]map[string]interface{}, error) {
	url := fmt.Sprintf("%s/v2/datasets/%s/items", a.baseURL, datasetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apify dataset request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apify dataset returned %d", resp.StatusCode)
	}

	var items []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode dataset items: %w", err)
	}

	return items, nil
}

// apifyHistory pulls the price series out of an item. Actors name the field
// differently across versions, so all known spellings are tried.
func apifyHistory(item map[string]interface{}) []Point {
	for _, key := range []string{"price_new_history", "priceHistory", "price_history"} {
		raw, ok := item[key].([]interface{})
		if !ok || len(raw) == 0 {
			continue
		}

		var points []Point
		for _, entry := range raw {
			m, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			price, ok := apifyNumber(m["price"])
			if !ok || price <= 0 {
				continue
			}
			ts, ok := apifyDate(m["date"])
			if !ok {
				continue
			}
			points = append(points, Point{Price: price, Timestamp: ts})
		}
		if len(points) > 0 {
			return points
		}
	}
	return nil
}

// apifyNumber reads a price that may be a bare number, a formatted string or
// a {value, currency} object
func apifyNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(n, ",", ""), 64)
		if err == nil {
			return parsed, true
		}
	case map[string]interface{}:
		if inner, ok := n["value"]; ok {
			return apifyNumber(inner)
		}
	}
	return 0, false
}

func apifyDate(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
