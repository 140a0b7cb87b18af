package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"citysim/internal/city"
)

func TestJournal_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "journal.jsonl.zst")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := uint64(1); i <= 3; i++ {
		if err := w.WriteTick(city.Summary{Tick: i, Population: int(i) * 2}); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := w.WriteAction(3, "bulldoze", 4, 5, "", true); err != nil {
		t.Fatalf("WriteAction: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := w.WriteTick(city.Summary{}); err == nil {
		t.Fatalf("write after close succeeded")
	}

	// The file is plain zstd.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	dec, _ := zstd.NewReader(nil)
	defer dec.Close()
	if _, err := dec.DecodeAll(raw, nil); err != nil {
		t.Fatalf("not a zstd stream: %v", err)
	}

	var got []Entry
	if err := Read(path, func(e Entry) error { got = append(got, e); return nil }); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("entries=%d want 4", len(got))
	}
	if got[1].Kind != KindTick || got[1].Summary == nil || got[1].Summary.Population != 4 {
		t.Fatalf("tick entry %+v", got[1])
	}
	if a := got[3]; a.Kind != KindAction || a.Action != "bulldoze" || a.X != 4 || !a.Applied {
		t.Fatalf("action entry %+v", a)
	}
}

func TestJournal_ReadStopsOnCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl.zst")
	w, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(1); i <= 5; i++ {
		_ = w.WriteTick(city.Summary{Tick: i})
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	stop := errors.New("stop")
	n := 0
	err = Read(path, func(Entry) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 2 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}
