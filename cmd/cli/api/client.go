package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/uptimecore/internal/domain"
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type AggregationReport struct {
	Date      string   `json:"date"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

type NewMonitor struct {
	Name            string `json:"name,omitempty"`
	URL             string `json:"url"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
	Public          bool   `json:"public"`
	Certificate     bool   `json:"certificate"`
}

func (c *Client) StatusChanges(limit int) ([]domain.StatusChange, error) {
	var out struct {
		Data []domain.StatusChange `json:"data"`
	}
	err := c.get("/api/status-changes?limit="+strconv.Itoa(limit), &out)
	return out.Data, err
}

func (c *Client) Monitors() ([]domain.Monitor, error) {
	var out struct {
		Data []domain.Monitor `json:"data"`
	}
	err := c.get("/api/monitors", &out)
	return out.Data, err
}

func (c *Client) DailyUptime(id int64, date string) (*domain.UptimeDaily, error) {
	var d domain.UptimeDaily
	if err := c.get(fmt.Sprintf("/api/monitors/%d/uptime/%s", id, url.PathEscape(date)), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) Incidents(id int64) ([]domain.Incident, error) {
	var out struct {
		Data []domain.Incident `json:"data"`
	}
	err := c.get(fmt.Sprintf("/api/monitors/%d/incidents", id), &out)
	return out.Data, err
}

func (c *Client) AddMonitor(m NewMonitor) (*domain.Monitor, error) {
	var out domain.Monitor
	if err := c.postJSON("/api/monitors", m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AggregateDaily(date string, ids []int64) (*AggregationReport, error) {
	body := map[string]any{"date": date, "monitor_ids": ids}
	var rep AggregationReport
	if err := c.postJSON("/api/aggregations/daily", body, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *Client) do(req *http.Request, v any) error {
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

func (c *Client) postJSON(path string, body, v any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, v)
}
