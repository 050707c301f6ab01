// Package web serves availability reports as JSON for --serve mode.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"time"

	"roomfree/internal/config"
	appLog "roomfree/internal/log"
	"roomfree/internal/model"
)

// resultTTL is how long a report is reused for an identical query.
const resultTTL = time.Minute

// QueryFunc runs one availability query.
type QueryFunc func(ctx context.Context, q model.Query) (model.Report, error)

// Server provides the HTTP API: /health and /api/availability.
type Server struct {
	cfg   *config.Config
	loc   *time.Location
	query QueryFunc
	now   func() time.Time
	mux   *http.ServeMux

	resultsMu sync.Mutex
	results   map[string]cachedResult
}

type cachedResult struct {
	resp      availabilityResponse
	updatedAt time.Time
}

// NewServer constructs a new Server answering queries with query. Dates and
// times in requests are read in loc.
func NewServer(cfg *config.Config, loc *time.Location, query QueryFunc) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:     cfg,
		loc:     loc,
		query:   query,
		now:     time.Now,
		mux:     http.NewServeMux(),
		results: make(map[string]cachedResult),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password leaves auth disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="roomfree", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on s.cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/availability", s.handleAvailability)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// availabilityResponse is the JSON response shape for /api/availability.
type availabilityResponse struct {
	At       time.Time    `json:"at"`
	Range    string       `json:"range"`
	Tally    tallyDTO     `json:"tally"`
	Verdicts []verdictDTO `json:"verdicts"`
}

type tallyDTO struct {
	Available   int `json:"available"`
	Later       int `json:"later"`
	Unavailable int `json:"unavailable"`
	NoSchedule  int `json:"no_schedule"`
	Failed      int `json:"failed"`
}

type verdictDTO struct {
	Room            string     `json:"room"`
	Area            string     `json:"area,omitempty"`
	Seats           string     `json:"seats,omitempty"`
	Type            string     `json:"type,omitempty"`
	VariableSeating bool       `json:"variable_seating"`
	Status          string     `json:"status"`
	From            *time.Time `json:"from,omitempty"`
	To              *time.Time `json:"to,omitempty"`
	Note            string     `json:"note,omitempty"`
}

const (
	statusAvailable   = "available"
	statusLater       = "later"
	statusUnavailable = "unavailable"
	statusNoSchedule  = "no_schedule"
)

func toResponse(at time.Time, report model.Report) availabilityResponse {
	resp := availabilityResponse{
		At:       at,
		Range:    model.WeekOf(at).Token(),
		Tally:    tallyDTO{Failed: report.Failures},
		Verdicts: make([]verdictDTO, 0, len(report.Verdicts)),
	}
	for _, v := range report.Verdicts {
		room := v.Subject()
		dto := verdictDTO{
			Room:            room.Name(),
			Area:            room.Area,
			Seats:           room.Seats,
			Type:            room.Type,
			VariableSeating: room.VariableSeating,
		}
		switch v := v.(type) {
		case model.Available:
			from, to := v.From, v.To
			dto.From, dto.To, dto.Note = &from, &to, v.Note
			switch {
			case v.NoAllocations:
				dto.Status = statusNoSchedule
				resp.Tally.NoSchedule++
			case v.Future:
				dto.Status = statusLater
				resp.Tally.Later++
			default:
				dto.Status = statusAvailable
				resp.Tally.Available++
			}
		case model.Unavailable:
			dto.Status = statusUnavailable
			resp.Tally.Unavailable++
		}
		resp.Verdicts = append(resp.Verdicts, dto)
	}
	return resp
}

// handleAvailability runs a query and returns every verdict with tallies.
//
// GET /api/availability?date=2024-05-08&time=14:00&area=Z&building=HG
//   - date:     query day (default today)
//   - time:     query time of day (default now)
//   - area:     area regex (default from config)
//   - building: building regex (default from config)
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	at, err := s.queryInstant(params.Get("date"), params.Get("time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	area := s.cfg.Area
	if params.Has("area") {
		area = params.Get("area")
	}
	building := s.cfg.Building
	if params.Has("building") {
		building = params.Get("building")
	}

	q := model.Query{
		At:               at,
		ShowFixedSeating: s.cfg.ShowFixedSeating,
		ShowUnavailable:  s.cfg.ShowUnavailable,
		ShowLater:        s.cfg.ShowLater,
		ShowSeats:        s.cfg.ShowSeats,
	}
	if q.AreaFilter, err = compileFilter(area); err != nil {
		writeError(w, http.StatusBadRequest, "area: "+err.Error())
		return
	}
	if q.BuildingFilter, err = compileFilter(building); err != nil {
		writeError(w, http.StatusBadRequest, "building: "+err.Error())
		return
	}

	key := at.Format(time.RFC3339) + "|" + area + "|" + building
	if resp, ok := s.cached(key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	appLog.Info("api availability request", "at", at.Format(time.RFC3339), "area", area, "building", building)
	report, err := s.query(r.Context(), q)
	if err != nil {
		appLog.Error("api availability: query failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	resp := toResponse(at, report)

	s.resultsMu.Lock()
	s.results[key] = cachedResult{resp: resp, updatedAt: s.now()}
	s.resultsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cached(key string) (availabilityResponse, bool) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	now := s.now()
	for k, c := range s.results {
		if now.Sub(c.updatedAt) >= resultTTL {
			delete(s.results, k)
		}
	}
	c, ok := s.results[key]
	return c.resp, ok
}

// queryInstant combines the date and time parameters. Missing parts come
// from the current time, truncated to the minute.
func (s *Server) queryInstant(date, clock string) (time.Time, error) {
	now := s.now().In(s.loc).Truncate(time.Minute)
	day := model.StartOfDay(now)
	if date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, s.loc)
		if err != nil {
			return time.Time{}, errors.New("date must look like 2006-01-02")
		}
		day = d
	}
	hour, minute := now.Hour(), now.Minute()
	if clock != "" {
		c, err := time.Parse("15:04", clock)
		if err != nil {
			return time.Time{}, errors.New("time must look like 15:04")
		}
		hour, minute = c.Hour(), c.Minute()
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, s.loc), nil
}

func compileFilter(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
