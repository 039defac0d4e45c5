package aggregator

import (
	"encoding/json"
	"net/http"
	"time"
)

type typeView struct {
	RequestType  string  `json:"requestType"`
	Total        int64   `json:"total"`
	Succeeded    int64   `json:"succeeded"`
	Failed       int64   `json:"failed"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	MinLatencyMs float64 `json:"minLatencyMs"`
	MaxLatencyMs float64 `json:"maxLatencyMs"`
	SlowCount    int64   `json:"slowCount"`
}

type slowView struct {
	SlowRequest
	DurationMs float64 `json:"durationMs"`
}

type reportView struct {
	RequestTypes []typeView         `json:"requestTypes"`
	Percentiles  map[string]float64 `json:"percentilesMs"`
	Samples      int                `json:"samples"`
	SlowRequests []slowView         `json:"slowRequests"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Report builds the JSON document served by Handler.
func (a *Aggregator) Report() any {
	snaps := a.Snapshots()
	types := make([]typeView, 0, len(snaps))
	for _, s := range snaps {
		types = append(types, typeView{
			RequestType:  s.RequestType,
			Total:        s.Total,
			Succeeded:    s.Succeeded,
			Failed:       s.Failed,
			AvgLatencyMs: millis(s.AvgLatency),
			MinLatencyMs: millis(s.MinLatency),
			MaxLatencyMs: millis(s.MaxLatency),
			SlowCount:    s.SlowCount,
		})
	}

	ps := a.Percentiles(0.50, 0.95, 0.99)

	history := a.SlowRequests()
	slow := make([]slowView, 0, len(history))
	for _, r := range history {
		slow = append(slow, slowView{SlowRequest: r, DurationMs: millis(r.Duration)})
	}

	return reportView{
		RequestTypes: types,
		Percentiles: map[string]float64{
			"p50": millis(ps[0]),
			"p95": millis(ps[1]),
			"p99": millis(ps[2]),
		},
		Samples:      a.LatencySamples(),
		SlowRequests: slow,
	}
}

// Handler serves the aggregated statistics as JSON.
func (a *Aggregator) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(a.Report())
	})
}
