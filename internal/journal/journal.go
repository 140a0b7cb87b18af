// Package journal records the simulation as zstd-compressed JSON lines.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"citysim/internal/city"
)

const (
	KindTick   = "tick"
	KindAction = "action"
)

// Entry is one journal line. Summary is set for tick entries, the action
// fields for action entries.
type Entry struct {
	Kind    string        `json:"kind"`
	Tick    uint64        `json:"tick"`
	Summary *city.Summary `json:"summary,omitempty"`
	Action  string        `json:"action,omitempty"`
	X       int           `json:"x,omitempty"`
	Y       int           `json:"y,omitempty"`
	Detail  string        `json:"detail,omitempty"`
	Applied bool          `json:"applied,omitempty"`
}

// Writer appends entries to a single .jsonl.zst file. It is safe for
// concurrent use.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}, nil
}

func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return errors.New("journal closed")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *Writer) WriteTick(s city.Summary) error {
	return w.Write(Entry{Kind: KindTick, Tick: s.Tick, Summary: &s})
}

func (w *Writer) WriteAction(tick uint64, action string, x, y int, detail string, applied bool) error {
	return w.Write(Entry{Kind: KindAction, Tick: tick, Action: action, X: x, Y: y, Detail: detail, Applied: applied})
}

// Flush pushes buffered entries through the encoder so a reader sees them
// once the file is closed.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	var errs []error
	errs = append(errs, w.w.Flush(), w.enc.Close(), w.f.Close())
	w.w, w.enc, w.f = nil, nil, nil
	return errors.Join(errs...)
}

// Read decodes every entry of a journal file in order and hands it to fn.
// Returning an error from fn stops the scan.
func Read(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Decode(f, fn)
}

func Decode(r io.Reader, fn func(Entry) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("journal line %d: %w", line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
