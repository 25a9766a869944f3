// Package transporthttp is the admin surface of the pipeline: liveness,
// store readiness, last cycle status and login counts.
package transporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yuanning6/etl-off-sqs/internal/config"
	"github.com/yuanning6/etl-off-sqs/internal/ingest"
	spg "github.com/yuanning6/etl-off-sqs/internal/storage/postgres"
)

// Store is what the handlers read from the database.
type Store interface {
	Ready(ctx context.Context) error
	QueryTotals(ctx context.Context, from, to time.Time, deviceType string) (spg.MetricsTotals, error)
	QueryBucketsDaily(ctx context.Context, from, to time.Time, deviceType string) ([]spg.MetricsBucket, error)
}

// CycleReporter exposes the last polling cycle.
type CycleReporter interface {
	LastCycle() (ingest.CycleStats, time.Time)
}

type ServerDeps struct {
	Cfg    config.Config
	DB     Store
	Cycles CycleReporter
	Now    func() time.Time
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.DB.Ready(r.Context()); err != nil {
		WriteProblem(w, http.StatusServiceUnavailable, "not ready", "database not reachable", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// --- Last cycle ---

type statusResp struct {
	CycleID    string `json:"cycle_id,omitempty"`
	FinishedAt int64  `json:"finished_at,omitempty"`
	Received   int    `json:"received"`
	Persisted  int    `json:"persisted"`
	Duplicates int    `json:"duplicates"`
	Acked      int    `json:"acked"`
	AckFailed  int    `json:"ack_failed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}

func (d *ServerDeps) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, at := d.Cycles.LastCycle()
	if at.IsZero() {
		WriteProblem(w, http.StatusNotFound, "no cycle yet", "no polling cycle has completed", nil)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{
		CycleID:    st.CycleID,
		FinishedAt: at.Unix(),
		Received:   st.Received,
		Persisted:  st.Persisted,
		Duplicates: st.Duplicates,
		Acked:      st.Acked,
		AckFailed:  st.AckFailed,
		Failed:     st.Failed,
		Skipped:    st.Skipped,
	})
}

// --- Metrics ---

type metricsResp struct {
	Totals  spg.MetricsTotals   `json:"totals"`
	Buckets []spg.MetricsBucket `json:"buckets,omitempty"`
}

const defaultWindow = 24 * time.Hour  // last 24h default
const maxWindow = 90 * 24 * time.Hour // cap at 90 days (guardrail)

func parseEpoch(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}

func (d *ServerDeps) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromStr := q.Get("from") // optional
	toStr := q.Get("to")     // optional
	groupBy := q.Get("group_by")
	deviceType := strings.TrimSpace(q.Get("device_type"))

	now := d.Now().UTC()
	from, to := now.Add(-defaultWindow), now
	var err error

	if toStr != "" {
		if to, err = parseEpoch(toStr); err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "to must be epoch seconds", nil)
			return
		}
		from = to.Add(-defaultWindow)
	}
	if fromStr != "" {
		if from, err = parseEpoch(fromStr); err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must be epoch seconds", nil)
			return
		}
	}
	if from.After(to) {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must not be after to", nil)
		return
	}

	// guardrail: cap excessively large ranges
	if to.Sub(from) > maxWindow {
		from = to.Add(-maxWindow)
	}

	ctx := r.Context()
	tot, err := d.DB.QueryTotals(ctx, from, to, deviceType)
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "query error", "failed to query totals", nil)
		return
	}
	resp := metricsResp{Totals: tot}

	if groupBy == "day" {
		resp.Buckets, err = d.DB.QueryBucketsDaily(ctx, from, to, deviceType)
		if err != nil {
			WriteProblem(w, http.StatusInternalServerError, "query error", "failed to query buckets", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", d.HandleHealthz)
	r.Get("/readyz", d.HandleReadyz)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(d.Cfg.APIKeys))
		r.Get("/status", d.HandleStatus)
		r.With(RateLimitPerMinute(d.Cfg.RateLimitMetricsPerMin, d.Now)).Get("/metrics", d.HandleGetMetrics)
	})
	return r
}
