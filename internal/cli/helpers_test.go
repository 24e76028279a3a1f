package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storesync/internal/delta"
	"github.com/roach88/storesync/internal/store"
)

type testEnv struct {
	dir    string
	dbPath string
	config string
}

// newTestEnv writes a configuration pointing at a temp SQLite database and
// the given locator URL. extra is appended verbatim to the YAML.
func newTestEnv(t *testing.T, locatorURL, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:    dir,
		dbPath: filepath.Join(dir, "stores.db"),
		config: filepath.Join(dir, "storesync.yaml"),
	}
	yaml := fmt.Sprintf(`database:
  driver: sqlite3
  dsn: %s
geocoder:
  url: %s
lock:
  kind: file
  path: %s
logging:
  level: debug
`, env.dbPath, locatorURL, filepath.Join(dir, "run.lock")) + extra
	require.NoError(t, os.WriteFile(env.config, []byte(yaml), 0o644))
	return env
}

// seed opens the database, seeds master and queue, and closes it again.
func (e *testEnv) seed(t *testing.T, master []string, news []string, removed []string) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(store.DriverSQLite, e.dbPath)
	require.NoError(t, err)
	defer s.Close()

	projection := []string{"store_id", "store_addr1", "store_city", "state_code", "zip", "store_name"}
	for _, id := range master {
		require.NoError(t, s.InsertStore(ctx, projection, delta.MasterStoreRecord{
			StoreID:    id,
			Location:   delta.Location{Lat: 39.78, Lon: -89.65},
			Geohash:    "dp0n2k",
			Address:    delta.Address{Street: "1 Main St", City: "Springfield", Region: "IL", PostalCode: "62701"},
			Attributes: map[string]any{"store_name": "Store " + id},
		}))
	}
	enqueue := func(id string, kind delta.ChangeKind) {
		_, err := s.EnqueueDelta(ctx, delta.DeltaRecord{
			StoreID:    id,
			Kind:       kind,
			Address:    delta.Address{Street: "9 " + id + " Rd", City: "Peoria", Region: "IL", PostalCode: "61602"},
			Attributes: map[string]any{"store_name": "Store " + id},
		})
		require.NoError(t, err)
	}
	for _, id := range news {
		enqueue(id, delta.KindNew)
	}
	for _, id := range removed {
		enqueue(id, delta.KindRemoved)
	}
}

func (e *testEnv) openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newLocator serves a batch locator that answers each id with the status
// in statuses, or fails every request when statuses is nil.
func newLocator(t *testing.T, statuses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if statuses == nil {
			http.Error(w, "locator offline", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Records []struct {
				ID string `json:"id"`
			} `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type result struct {
			ID       string             `json:"id"`
			Location map[string]float64 `json:"location"`
			Score    float64            `json:"score"`
			Status   string             `json:"status"`
		}
		var resp struct {
			Results []result `json:"results"`
		}
		for i, rec := range req.Records {
			resp.Results = append(resp.Results, result{
				ID:       rec.ID,
				Location: map[string]float64{"x": -89.6 + float64(i)*0.01, "y": 40.69},
				Score:    95,
				Status:   statuses[rec.ID],
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	srv.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(srv.Close)
	return srv
}

// mailSink is a minimal SMTP server that accepts every message and keeps
// the last body per recipient.
type mailSink struct {
	ln net.Listener

	mu       sync.Mutex
	messages map[string]string
}

func newMailSink(t *testing.T) *mailSink {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &mailSink{ln: ln, messages: map[string]string{}}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.handle(conn)
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *mailSink) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	reply := func(line string) { _ = tp.PrintfLine("%s", line) }

	reply("220 localhost ESMTP")
	var rcpt string
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		switch strings.ToUpper(strings.Fields(line)[0]) {
		case "EHLO", "HELO":
			reply("250 localhost")
		case "RCPT":
			rcpt = strings.TrimSuffix(strings.TrimPrefix(line[len("RCPT TO:"):], "<"), ">")
			reply("250 OK")
		case "DATA":
			reply("354 go ahead")
			body, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages[rcpt] = string(body)
			s.mu.Unlock()
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

// alertsYAML writes a recipients file and returns an alerts section
// pointing at the sink.
func (s *mailSink) alertsYAML(t *testing.T, recipients ...string) string {
	t.Helper()
	csv := "name,email\n"
	for _, r := range recipients {
		csv += "Ops," + r + "\n"
	}
	path := filepath.Join(t.TempDir(), "recipients.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))
	return fmt.Sprintf(`alerts:
  recipients_file: %s
  smtp:
    addr: %s
    from: storesync@example.com
`, path, s.ln.Addr().String())
}

func (s *mailSink) message(to string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[to]
	return m, ok
}

// execute runs a root subcommand with args and returns stdout and stderr.
func execute(t *testing.T, newCmd func(*RootOptions) *cobra.Command, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newCmd(opts)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
