package dbapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bahnspiegel/bahnspiegel/internal/metrics"
)

const (
	defaultTimetableBase = "https://apis.deutschebahn.com/db-api-marketplace/apis/timetables/v1"
	defaultStationBase   = "https://apis.deutschebahn.com/db-api-marketplace/apis/station-data/v2"

	// The marketplace allows 60 requests per minute on the free plan.
	requestInterval = time.Second
)

// Client talks to the timetable marketplace API. Requests are retried with
// exponential backoff and spaced out to honor the per-minute rate limit.
type Client struct {
	apiKey        string
	clientID      string
	timetableBase string
	stationBase   string
	client        *http.Client
	lastRequest   time.Time
}

func NewClient(apiKey, clientID string) *Client {
	return &Client{
		apiKey:        apiKey,
		clientID:      clientID,
		timetableBase: defaultTimetableBase,
		stationBase:   defaultStationBase,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchPlan retrieves the planned snapshot for one station hour.
func (c *Client) FetchPlan(ctx context.Context, eva string, day time.Time, hour int) ([]byte, error) {
	url := fmt.Sprintf("%s/plan/%s/%s/%02d", c.timetableBase, eva, day.Format("060102"), hour)
	return c.fetchXML(ctx, "plan", url)
}

// FetchChanges retrieves the full change document for one station.
func (c *Client) FetchChanges(ctx context.Context, eva string) ([]byte, error) {
	url := fmt.Sprintf("%s/fchg/%s", c.timetableBase, eva)
	return c.fetchXML(ctx, "fchg", url)
}

func (c *Client) fetchXML(ctx context.Context, endpoint, url string) ([]byte, error) {
	return c.fetch(ctx, endpoint, url, "application/xml")
}

func (c *Client) fetch(ctx context.Context, endpoint, url, accept string) ([]byte, error) {
	c.throttle()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		c.setHeaders(req, accept)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", endpoint, err)
		}
		defer resp.Body.Close()
		metrics.APICallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	req.Header.Set("DB-Api-Key", c.apiKey)
	req.Header.Set("DB-Client-Id", c.clientID)
	req.Header.Set("accept", accept)
}

func (c *Client) throttle() {
	if elapsed := time.Since(c.lastRequest); elapsed < requestInterval {
		time.Sleep(requestInterval - elapsed)
	}
	c.lastRequest = time.Now()
}
