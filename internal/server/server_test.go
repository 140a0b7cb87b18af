package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"citysim/internal/city"
	"citysim/internal/config"
	"citysim/internal/journal"
	"citysim/internal/protocol"
	"citysim/internal/statsdb"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Width, cfg.Height = 6, 6
	opts = append(opts, WithTickInterval(time.Hour))
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRouter_HealthStateAndTiles(t *testing.T) {
	s, ts := newTestServer(t)
	place, _ := protocol.DecodeAction([]byte(`{"type":"place_building","payload":{"x":2,"y":3,"kind":"commercial"}}`))
	if err := s.Apply(place); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if code, body := get(t, ts.URL+"/health"); code != http.StatusOK || body != "ok" {
		t.Fatalf("/health = %d %q", code, body)
	}

	code, body := get(t, ts.URL+"/state")
	if code != http.StatusOK {
		t.Fatalf("/state = %d", code)
	}
	var fs protocol.FullState
	if err := json.Unmarshal([]byte(body), &fs); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if fs.Width != 6 || len(fs.Buildings) != 1 {
		t.Fatalf("state %+v", fs)
	}

	code, body = get(t, ts.URL+"/tiles/2/3")
	if code != http.StatusOK || !strings.Contains(body, "Commercial Zone") {
		t.Fatalf("/tiles/2/3 = %d %q", code, body)
	}
	if code, _ := get(t, ts.URL+"/tiles/9/9"); code != http.StatusNotFound {
		t.Fatalf("out of bounds tile = %d", code)
	}
	if code, _ := get(t, ts.URL+"/tiles/a/1"); code != http.StatusBadRequest {
		t.Fatalf("bad coordinates = %d", code)
	}
	if code, _ := get(t, ts.URL+"/stats"); code != http.StatusNotFound {
		t.Fatalf("/stats without db = %d", code)
	}
}

func TestServer_StepRecordsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	jw, err := journal.Create(filepath.Join(dir, "journal.jsonl.zst"))
	if err != nil {
		t.Fatal(err)
	}
	db, err := statsdb.OpenSQLite(filepath.Join(dir, "stats.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	s, ts := newTestServer(t, WithJournal(jw), WithStats(db))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	read := func() protocol.Envelope {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		return env
	}
	if env := read(); env.Type != protocol.EventFullState {
		t.Fatalf("first message %s", env.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"place_building","payload":{"x":1,"y":1,"kind":"road"}}`)); err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for !seen[protocol.EventRoadUpdate] || !seen[protocol.EventBuildingUpdate] {
		seen[read().Type] = true
	}

	var last city.Summary
	for i := 0; i < 3; i++ {
		last = s.Step()
	}
	if last.Tick != 3 {
		t.Fatalf("tick=%d", last.Tick)
	}
	for !seen[protocol.EventTick] || !seen[protocol.EventTraffic] {
		seen[read().Type] = true
	}

	if err := jw.Close(); err != nil {
		t.Fatal(err)
	}
	var ticks, actions int
	err = journal.Read(filepath.Join(dir, "journal.jsonl.zst"), func(e journal.Entry) error {
		switch e.Kind {
		case journal.KindTick:
			ticks++
		case journal.KindAction:
			actions++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if ticks != 3 || actions != 1 {
		t.Fatalf("journal ticks=%d actions=%d", ticks, actions)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rows, err := db.Range(context.Background(), 0, 10)
		if err != nil {
			t.Fatalf("Range: %v", err)
		}
		if len(rows) == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats rows=%d", len(rows))
		}
		time.Sleep(10 * time.Millisecond)
	}
	code, body := get(t, ts.URL+"/stats?from=2")
	if code != http.StatusOK || !strings.Contains(body, `"tick":3`) || strings.Contains(body, `"tick":1,`) {
		t.Fatalf("/stats = %d %s", code, body)
	}
	_ = db.Close()
}

func TestNew_LayoutLargerThanBroadcastBuffer(t *testing.T) {
	cfg := config.Default()
	cfg.Width, cfg.Height = 64, 64
	for y := 0; y < 5; y++ {
		for x := 0; x < cfg.Width; x++ {
			cfg.Layout = append(cfg.Layout, config.Placement{X: x, Y: y, Kind: "road"})
		}
	}
	cfg.Layout = append(cfg.Layout, config.Placement{X: 3, Y: 5, Kind: "residential"})

	type result struct {
		s   *Server
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := New(cfg, WithTickInterval(time.Hour))
		done <- result{s, err}
	}()
	var s *Server
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("New: %v", r.err)
		}
		s = r.s
	case <-time.After(5 * time.Second):
		t.Fatalf("New did not return for a %d-placement layout", len(cfg.Layout))
	}

	fs := s.FullState()
	if len(fs.Buildings) != 5*64+1 || len(fs.Roads) != 5*64 {
		t.Fatalf("buildings=%d roads=%d", len(fs.Buildings), len(fs.Roads))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	var got protocol.FullState
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if env.Type != protocol.EventFullState || len(got.Roads) != 5*64 {
		t.Fatalf("first message %s with %d roads", env.Type, len(got.Roads))
	}
}

func TestListenAndServe_StopsTickingBeforeReturn(t *testing.T) {
	db, err := statsdb.OpenSQLite(filepath.Join(t.TempDir(), "stats.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Width, cfg.Height = 6, 6
	s, err := New(cfg, WithStats(db), WithTickInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tick := func() uint64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.city.Tick()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	deadline := time.Now().Add(5 * time.Second)
	for tick() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("city did not tick, tick=%d", tick())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("ListenAndServe did not return")
	}

	if err := db.Close(); err != nil {
		t.Fatalf("close stats: %v", err)
	}
	stopped := tick()
	time.Sleep(20 * time.Millisecond)
	if got := tick(); got != stopped {
		t.Fatalf("city kept ticking after return: %d -> %d", stopped, got)
	}
}
