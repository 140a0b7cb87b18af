// Package server hosts a city: it ticks the simulation on a timer, serves
// the HTTP inspection API and relays websocket traffic.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"citysim/internal/city"
	"citysim/internal/config"
	"citysim/internal/journal"
	"citysim/internal/protocol"
	"citysim/internal/statsdb"
	"citysim/internal/transport/ws"
)

type Option func(*Server)

func WithLogger(l *slog.Logger) Option        { return func(s *Server) { s.log = l } }
func WithJournal(j *journal.Writer) Option    { return func(s *Server) { s.journal = j } }
func WithStats(db *statsdb.DB) Option         { return func(s *Server) { s.stats = db } }
func WithTickInterval(d time.Duration) Option { return func(s *Server) { s.interval = d } }

// Server serializes every access to the city behind mu.
type Server struct {
	mu   sync.Mutex
	city *city.City

	hub      *ws.Hub
	journal  *journal.Writer
	stats    *statsdb.DB
	log      *slog.Logger
	interval time.Duration
}

// New builds the city from cfg, including its initial layout. The layout is
// placed before the hub is attached; clients receive it in full_state.
func New(cfg config.Config, opts ...Option) (*Server, error) {
	s := &Server{log: slog.Default(), interval: cfg.TickInterval}
	for _, opt := range opts {
		opt(s)
	}
	s.city = city.New(cfg, nil, city.WithLogger(s.log.With("component", "city")))
	if err := s.city.ApplyLayout(cfg.Layout); err != nil {
		return nil, err
	}
	s.hub = ws.NewHub(s.log.With("component", "ws"))
	s.hub.Bind(s)
	s.city.SetView(s.hub)
	return s, nil
}

func (s *Server) FullState() protocol.FullState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.Snapshot(s.city)
}

// Apply runs a client action. Actions that change nothing are not errors.
func (s *Server) Apply(a protocol.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied, err := a.Apply(s.city)
	x, y, detail := 0, 0, ""
	switch {
	case a.Place != nil:
		x, y, detail = a.Place.X, a.Place.Y, a.Place.Kind
	case a.Bulldoze != nil:
		x, y = a.Bulldoze.X, a.Bulldoze.Y
	}
	if s.journal != nil {
		if jerr := s.journal.WriteAction(s.city.Tick(), a.Type, x, y, detail, applied); jerr != nil {
			s.log.Warn("journal write failed", "err", jerr)
		}
	}
	s.log.Info("action", "type", a.Type, "x", x, "y", y, "detail", detail, "applied", applied)
	return err
}

// Step advances the city one tick and publishes the result.
func (s *Server) Step() city.Summary {
	s.mu.Lock()
	s.city.Step()
	sum := s.city.Summary()
	traffic := protocol.TrafficOf(s.city)
	s.mu.Unlock()

	s.hub.Broadcast(protocol.EventTick, sum)
	s.hub.Broadcast(protocol.EventTraffic, traffic)
	if s.journal != nil {
		if err := s.journal.WriteTick(sum); err != nil {
			s.log.Warn("journal write failed", "tick", sum.Tick, "err", err)
		}
	}
	s.stats.WriteTick(sum)
	return sum
}

// Run ticks the city until ctx is done. A tick in progress completes
// before Run returns.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum := s.Step()
			if sum.Tick%60 == 0 {
				s.log.Info("tick", "tick", sum.Tick, "population", sum.Population,
					"employed", sum.Employed, "vehicles", sum.Vehicles)
			}
		}
	}
}

// ListenAndServe serves the router on addr and ticks the city until ctx
// is cancelled. It returns only after the tick loop has stopped, so the
// caller may close the journal and stats database right away.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	runCtx, stopRun := context.WithCancel(ctx)
	ran := make(chan struct{})
	go func() {
		defer close(ran)
		s.Run(runCtx)
	}()
	defer func() {
		stopRun()
		<-ran
	}()
	s.log.Info("listening", "addr", addr)

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

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.FullState())
	})
	r.Get("/summary", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		sum := s.city.Summary()
		s.mu.Unlock()
		writeJSON(w, sum)
	})
	r.Get("/tiles/{x}/{y}", s.handleTile)
	r.Get("/stats", s.handleStats)
	r.Handle("/ws", s.hub)
	return r
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errX != nil || errY != nil {
		http.Error(w, "bad coordinates", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.city.Tile(x, y)
	if t == nil {
		http.Error(w, "tile out of bounds", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(t.Describe(s.city)))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "stats database not configured", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	from, _ := strconv.ParseUint(q.Get("from"), 10, 64)
	to, err := strconv.ParseUint(q.Get("to"), 10, 64)
	if err != nil {
		s.mu.Lock()
		to = s.city.Tick()
		s.mu.Unlock()
	}
	rows, err := s.stats.Range(r.Context(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode", http.StatusInternalServerError)
	}
}
