package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xz3dev/quacklytics-sub000/code/partition"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// Client is the HTTP source backed by the analytics server
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

type errorBody struct {
	Error string `json:"error"`
}

func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

func (c *Client) Checksums(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if err := c.do(ctx, "/events/parquet/checksums", &out); err != nil {
		return nil, fmt.Errorf("fetch checksums: %w", err)
	}
	return out, nil
}

func (c *Client) Download(ctx context.Context, filename, eventType string) ([]byte, error) {
	key, ok := partition.Parse(filename)
	if !ok {
		return nil, fmt.Errorf("not a partition file name: %q", filename)
	}
	q := url.Values{}
	q.Set("year", strconv.Itoa(key.Year))
	q.Set("week", strconv.Itoa(key.Week))
	if eventType != "" {
		q.Set("eventType", eventType)
	}
	var blob []byte
	if err := c.do(ctx, "/events/parquet/download?"+q.Encode(), &blob); err != nil {
		return nil, fmt.Errorf("download %s: %w", filename, err)
	}
	return blob, nil
}

// RecentEvents returns the events recorded after since
func (c *Client) RecentEvents(ctx context.Context, since time.Time) ([]typesdb.AnalyticsEvent, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	var out []typesdb.AnalyticsEvent
	if err := c.do(ctx, "/events?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("fetch recent events: %w", err)
	}
	return out, nil
}

// Schema returns the known property types per event type
func (c *Client) Schema(ctx context.Context) (map[string]map[string]string, error) {
	out := map[string]map[string]string{}
	if err := c.do(ctx, "/schema", &out); err != nil {
		return nil, fmt.Errorf("fetch schema: %w", err)
	}
	return out, nil
}

// do issues a GET. A *[]byte out receives the raw body; anything else is JSON decoded.
func (c *Client) do(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		token := c.token
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if raw, ok := out.(*[]byte); ok {
			*raw, err = io.ReadAll(resp.Body)
			return err
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		if strings.TrimSpace(eb.Error) != "" {
			return fmt.Errorf("catalog %d: %s", resp.StatusCode, eb.Error)
		}
		return fmt.Errorf("catalog status %d", resp.StatusCode)
	}
}
