package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_SendsKeyAndDecodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		switch r.URL.Path {
		case "/api/monitors/7/uptime/2025-08-18":
			w.Write([]byte(`{"monitor_id":7,"date":"2025-08-18","total_checks":4,"uptime_percentage":75}`))
		case "/api/aggregations/daily":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			w.Write([]byte(`{"date":"` + body["date"].(string) + `","succeeded":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := New(ts.URL+"/", "k1")
	d, err := c.DailyUptime(7, "2025-08-18")
	if err != nil || d.UptimePercentage != 75 || d.TotalChecks != 4 {
		t.Fatalf("unexpected %+v err=%v", d, err)
	}
	rep, err := c.AggregateDaily("2025-08-17", nil)
	if err != nil || rep.Date != "2025-08-17" || rep.Succeeded != 1 {
		t.Fatalf("unexpected %+v err=%v", rep, err)
	}

	_, err = New(ts.URL, "").Monitors()
	if err == nil || !strings.Contains(err.Error(), "HTTP 401") {
		t.Fatalf("want HTTP 401 error, got %v", err)
	}
}
