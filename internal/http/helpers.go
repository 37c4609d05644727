package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"path/filepath"
	"strings"

	"optreturns/internal/core"
)

// allowMethods writes 405 with an Allow header unless r uses one of methods.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}

type tableRow struct {
	Key      string
	Value    string
	Negative bool
	Summary  bool
}

type tableData struct {
	KeyHeader   string
	ValueHeader string
	HasData     bool
	Rows        []tableRow
}

// loadTable loads the series for the table partial. An empty series is not
// an error: it renders the placeholder.
func (s *Server) loadTable(ctx context.Context) (tableData, error) {
	data := tableData{
		KeyHeader:   core.ChartXLabel,
		ValueHeader: core.ChartYLabel,
	}

	series, err := s.monthlyReturns(ctx)
	if errors.Is(err, core.ErrNoMonthlyReturns) {
		return data, nil
	}
	if err != nil {
		return data, err
	}

	data.HasData = true
	months := len(series.Months())
	for i, e := range series.Entries {
		data.Rows = append(data.Rows, tableRow{
			Key:      e.Key,
			Value:    core.FormatPercentage(e.Value),
			Negative: e.Value < 0 || math.IsNaN(e.Value),
			Summary:  i >= months,
		})
	}
	return data, nil
}

// sanitizeSource turns an uploaded file name into an import source label.
func sanitizeSource(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > 128 {
		name = name[:128]
	}
	return name
}
