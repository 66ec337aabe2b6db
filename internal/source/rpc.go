package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dashcal/internal/model"
)

// RPC fetches entries from an HTTP JSON backend:
//
//	GET {BaseURL}/calendars/{id}?start=RFC3339&end=RFC3339
//
// answering a JSON array of entries.
type RPC struct {
	BaseURL string
	// Token, if set, is sent as a bearer token.
	Token  string
	Client *http.Client
}

func NewRPC(baseURL, token string) *RPC {
	return &RPC{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RPC) Fetch(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEntry, error) {
	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	u := c.BaseURL + "/calendars/" + url.PathEscape(calendarID) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: %w", calendarID, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: %w", calendarID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("calendar %s: %s: %s", calendarID, resp.Status, strings.TrimSpace(string(msg)))
	}

	var entries []model.RawEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("calendar %s: decode entries: %w", calendarID, err)
	}
	return entries, nil
}
