package observ

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu    sync.Mutex
	out   io.Writer = os.Stdout
	runID string
)

// SetRunID stamps every subsequent event with a session identifier so log
// lines from different runs against the same ledger can be told apart.
func SetRunID(id string) {
	mu.Lock()
	defer mu.Unlock()
	runID = id
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Log emits a single-line JSON event.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	mu.Lock()
	defer mu.Unlock()
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	if runID != "" {
		kv["run_id"] = runID
	}
	b, _ := json.Marshal(kv)
	fmt.Fprintln(out, string(b))
}
