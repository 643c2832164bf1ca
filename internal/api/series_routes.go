package api

import (
	"net/http"

	"github.com/RoeeEidan/Chain-Prices/internal/dashboard"
	"github.com/RoeeEidan/Chain-Prices/internal/models"
	"github.com/RoeeEidan/Chain-Prices/internal/sparkline"
)

type seriesJSON struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Prices []models.PricePoint `json:"prices"`
	Error  string              `json:"error,omitempty"`
}

func toSeriesJSON(s models.CoinSeries) seriesJSON {
	out := seriesJSON{ID: s.ID, Name: s.Name, Prices: s.Prices}
	if out.Prices == nil {
		out.Prices = []models.PricePoint{}
	}
	if s.Err != nil {
		out.Error = "failed to read series"
	}
	return out
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	days, err := s.parseDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	all, err := s.query.Window(r.Context(), days)
	if err != nil {
		s.log.Errorf("series query: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query series")
		return
	}

	out := make([]seriesJSON, len(all))
	for i, cs := range all {
		out[i] = toSeriesJSON(cs)
	}
	writeJSON(w, http.StatusOK, out)
}

type changesJSON struct {
	Hour   *float64 `json:"1h"`
	Day    *float64 `json:"24h"`
	Window *float64 `json:"window"`
}

func pct(c sparkline.Change) *float64 {
	if !c.Defined {
		return nil
	}
	v := c.Pct
	return &v
}

type sampledJSON struct {
	ID      string              `json:"id"`
	Name    string              `json:"name"`
	Days    int                 `json:"days"`
	Total   int                 `json:"total"`
	Points  []models.PricePoint `json:"points"`
	Changes changesJSON         `json:"changes"`
	Up      bool                `json:"up"`
	Price   string              `json:"price,omitempty"`
}

func (s *Server) handleSampled(w http.ResponseWriter, r *http.Request) {
	days, err := s.parseDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxPts, err := parseIntParam(r, "max", sparkline.DefaultMaxPoints, 1, maxSamplePts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	cs, ok, err := s.query.Asset(r.Context(), id, days)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown asset "+id)
		return
	}
	if cs.Err != nil {
		writeError(w, http.StatusBadGateway, "failed to read series")
		return
	}

	sampled := sparkline.Sample(cs.Prices, maxPts)
	if sampled == nil {
		sampled = []models.PricePoint{}
	}
	changes := sparkline.ChangesAt(cs.Prices, s.now())
	out := sampledJSON{
		ID:     cs.ID,
		Name:   cs.Name,
		Days:   days,
		Total:  len(cs.Prices),
		Points: sampled,
		Changes: changesJSON{
			Hour:   pct(changes.Hour),
			Day:    pct(changes.Day),
			Window: pct(changes.Window),
		},
		Up: sparkline.Layout(sampled, sparkline.DefaultWidth, sparkline.DefaultHeight).Up(),
	}
	if last, ok := cs.Latest(); ok {
		out.Price = s.format.USD(last.Price)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.query.Catalog()
	if assets == nil {
		assets = []models.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days, err := s.parseDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	all, err := s.query.Window(r.Context(), days)
	if err != nil {
		s.log.Errorf("dashboard query: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query series")
		return
	}

	now := s.now()
	opts := dashboard.DefaultOptions(now)
	opts.Format = s.format
	page := dashboard.NewPage(dashboard.BuildRows(all, opts), days, now)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := dashboard.Render(w, page); err != nil {
		s.log.Errorf("%v", err)
	}
}
