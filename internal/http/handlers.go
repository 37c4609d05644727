package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"optreturns/internal/chart"
	"optreturns/internal/core"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and the backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := map[string]string{}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(ctx, "Readiness check failed", "error", err)
			checks["backend"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}

	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != RouteIndex {
		http.NotFound(w, r)
		return
	}
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	table, err := s.loadTable(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Monthly returns error", "error", err)
		http.Error(w, "failed to load monthly returns", http.StatusInternalServerError)
		return
	}

	data := struct {
		Header   string
		Title    string
		ChartURL string
		PNGURL   string
		Table    tableData
	}{
		Header:   core.ChartHeader,
		Title:    core.ChartTitle,
		ChartURL: RouteChartJSON,
		PNGURL:   RouteChartPNG,
		Table:    table,
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleMonthlyTable renders the monthly returns table partial.
func (s *Server) handleMonthlyTable(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	table, err := s.loadTable(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Monthly returns error", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<section id="monthly-returns" class="monthly-returns"><div class="placeholder">Failed to load monthly returns</div></section>`))
		return
	}
	if s.templates == nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<section id="monthly-returns" class="monthly-returns"><div class="placeholder">Templates not loaded</div></section>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "monthly_returns.html", table); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "monthly_returns.html")
	}
}

// handleChartJSON serves the Chart.js configuration, or 204 when there is
// nothing to plot.
func (s *Server) handleChartJSON(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	series, err := s.monthlyReturns(r.Context())
	if errors.Is(err, core.ErrNoMonthlyReturns) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Chart data error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute monthly returns"})
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, chart.ChartJSConfig(core.NewChartSpec(series)))
}

// handleChartPNG renders the chart as an image, or 204 when there is
// nothing to plot.
func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	series, err := s.monthlyReturns(r.Context())
	if errors.Is(err, core.ErrNoMonthlyReturns) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Chart data error", "error", err)
		http.Error(w, "failed to compute monthly returns", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, core.NewChartSpec(series), chart.DefaultWidth, chart.DefaultHeight); err != nil {
		slog.ErrorContext(r.Context(), "Chart render failed", "error", err)
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
