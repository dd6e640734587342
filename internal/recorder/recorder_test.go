package recorder

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradingengine/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderAppendsOneJSONLinePerEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	r := New(path, 16, nil, discardLogger())
	done := make(chan struct{})
	go r.Run(done)

	r.Record(types.Event{Kind: types.EventMd, Data: types.MdTick{Symbol: "BTCUSDT", BidPx: 1, AskPx: 2}})
	r.Record(types.Event{Kind: types.EventSig, Data: types.Signal{Symbol: "BTCUSDT"}})

	time.Sleep(100 * time.Millisecond)
	close(done)
	time.Sleep(50 * time.Millisecond)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var ev types.Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("line 0 is not valid JSON: %v", err)
	}
	if ev.Kind != types.EventMd {
		t.Errorf("first event kind = %v, want md", ev.Kind)
	}
}

func TestRecorderDropsOldestUnderBackpressure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	r := New(path, 2, nil, discardLogger())
	// No writer goroutine runs here, so five Records into a queue of two must
	// return without blocking and leave only the two newest events queued.
	for i := 0; i < 5; i++ {
		r.Record(types.Event{Kind: types.EventMd, Data: types.MdTick{Seq: uint64(i)}})
	}
	for _, want := range []uint64{3, 4} {
		ev := <-r.queue.Chan()
		if got := ev.Data.(types.MdTick).Seq; got != want {
			t.Errorf("queued event seq = %d, want %d", got, want)
		}
	}
}
