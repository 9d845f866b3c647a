// Package smoobu is a client for the Smoobu channel manager API.
package smoobu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/logger"
)

const pageSize = 100

// ErrDisabled is returned by every call when no API key is configured.
var ErrDisabled = errors.New("smoobu: api key not configured")

// APIError is a non-2xx response from Smoobu.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smoobu returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to Smoobu.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

func NewClient(baseURL, apiKey string, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     log.WithComponent("smoobu"),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithContext(ctx).Debug("smoobu request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse smoobu response: %w", err)
	}
	return nil
}

// ListReservations returns every reservation touching [from, to], including
// cancellations. apartmentID 0 lists all apartments.
func (c *Client) ListReservations(ctx context.Context, from, to civil.Date, apartmentID int64) ([]Reservation, error) {
	var all []Reservation
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("from", from.String())
		q.Set("to", to.String())
		q.Set("showCancellation", "true")
		q.Set("excludeBlocked", "false")
		q.Set("pageSize", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))
		if apartmentID != 0 {
			q.Set("apartmentId", strconv.FormatInt(apartmentID, 10))
		}

		var resp reservationsPage
		if err := c.do(ctx, http.MethodGet, "/reservations", q, nil, &resp); err != nil {
			return nil, fmt.Errorf("list reservations page %d: %w", page, err)
		}
		all = append(all, resp.Bookings...)
		if page >= resp.PageCount || len(resp.Bookings) == 0 {
			break
		}
	}
	return all, nil
}

// CreateReservation books the dates in Smoobu and returns the new reservation ID.
func (c *Client) CreateReservation(ctx context.Context, r NewReservation) (int64, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/reservations", nil, r, &resp); err != nil {
		return 0, fmt.Errorf("create reservation: %w", err)
	}
	if resp.ID == 0 {
		return 0, errors.New("create reservation: smoobu returned no id")
	}
	return resp.ID, nil
}

// CancelReservation cancels a reservation. An already missing one is not an error.
func (c *Client) CancelReservation(ctx context.Context, id int64) error {
	err := c.do(ctx, http.MethodDelete, "/reservations/"+strconv.FormatInt(id, 10), nil, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel reservation %d: %w", id, err)
	}
	return nil
}

func (c *Client) ListApartments(ctx context.Context) ([]Apartment, error) {
	var resp apartmentsResponse
	if err := c.do(ctx, http.MethodGet, "/apartments", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("list apartments: %w", err)
	}
	return resp.Apartments, nil
}
