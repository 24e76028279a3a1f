package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storesync/internal/delta"
	"github.com/roach88/storesync/internal/testutil"
)

func newRunCmd(opts *RunOptions) func(*RootOptions) *cobra.Command {
	return func(root *RootOptions) *cobra.Command {
		opts.RootOptions = root
		return newRunCommand(opts)
	}
}

func TestRun_InsertsAndRemoves(t *testing.T) {
	locator := newLocator(t, map[string]string{"S3": "M", "S4": "U"})
	env := newTestEnv(t, locator.URL, "")
	env.seed(t, []string{"S1", "S2"}, []string{"S3", "S4"}, []string{"S2"})

	root := &RootOptions{Format: "text", ConfigPath: env.config}
	opts := &RunOptions{RunIDs: testutil.NewFixedRunIDGenerator("run-a")}
	out, _, err := execute(t, newRunCmd(opts), root)
	require.NoError(t, err)

	assert.Contains(t, out, "Run run-a complete")
	assert.Contains(t, out, "selected: 2 new, 1 removed")
	assert.Contains(t, out, "inserted: 1")
	assert.Contains(t, out, "removed:  1")
	assert.Contains(t, out, "rejected: 1")
	assert.Contains(t, out, "master records: 2")
	assert.Contains(t, out, "projected: stores_projected")

	s := env.openStore(t)
	records, err := s.ListStores(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, r := range records {
		ids = append(ids, r.StoreID)
	}
	assert.Equal(t, []string{"S1", "S3"}, ids)

	run, ok, err := s.LastRun(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-a", run.RunID)
}

func TestRun_JSONOutput(t *testing.T) {
	locator := newLocator(t, map[string]string{"S3": "T"})
	env := newTestEnv(t, locator.URL, "")
	env.seed(t, []string{"S1"}, []string{"S3"}, nil)

	root := &RootOptions{Format: "json", ConfigPath: env.config}
	opts := &RunOptions{RunIDs: testutil.NewFixedRunIDGenerator("run-json")}
	out, _, err := execute(t, newRunCmd(opts), root)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			RunID  string `json:"run_id"`
			Report struct {
				Inserted int   `json:"inserted"`
				After    int64 `json:"after"`
			} `json:"report"`
			Projected []string `json:"projected"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-json", resp.Data.RunID)
	assert.Equal(t, 1, resp.Data.Report.Inserted)
	assert.Equal(t, int64(2), resp.Data.Report.After)
	assert.Contains(t, resp.Data.Projected, "stores_projected")
}

func TestRun_EmptyQueue(t *testing.T) {
	locator := newLocator(t, map[string]string{})
	env := newTestEnv(t, locator.URL, "")
	env.seed(t, []string{"S1"}, nil, nil)

	root := &RootOptions{Format: "text", ConfigPath: env.config}
	out, _, err := execute(t, newRunCmd(&RunOptions{}), root)
	require.NoError(t, err)
	assert.Contains(t, out, "inserted: 0")
	assert.Contains(t, out, "master records: 1")
}

func TestRun_LocatorFailureRollsBack(t *testing.T) {
	locator := newLocator(t, nil)
	env := newTestEnv(t, locator.URL, "")
	env.seed(t, []string{"S1", "S2"}, []string{"S3"}, []string{"S2"})

	root := &RootOptions{Format: "text", ConfigPath: env.config}
	opts := &RunOptions{RunIDs: testutil.NewFixedRunIDGenerator("run-fail")}
	out, errOut, err := execute(t, newRunCmd(opts), root)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [RESOLUTION_SERVICE_FAILURE]")
	assert.Contains(t, errOut, "run failed")

	s := env.openStore(t)
	n, err := s.CountStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "master dataset must be untouched")

	pending, err := s.CountDeltas(context.Background(), delta.KindNew)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	run, ok, err := s.LastRun(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-fail", run.RunID)
	assert.Contains(t, run.Message, "RESOLUTION_SERVICE_FAILURE")
}

func TestRun_AlertsWhenFailing(t *testing.T) {
	locator := newLocator(t, nil)
	mail := newMailSink(t)
	env := newTestEnv(t, locator.URL, mail.alertsYAML(t, "ops@example.com"))
	env.seed(t, []string{"S1"}, []string{"S3"}, nil)

	root := &RootOptions{Format: "text", ConfigPath: env.config}
	opts := &RunOptions{RunIDs: testutil.NewFixedRunIDGenerator("run-alert")}
	_, _, err := execute(t, newRunCmd(opts), root)
	require.Error(t, err)

	body, ok := mail.message("ops@example.com")
	require.True(t, ok, "alert not delivered")
	assert.Contains(t, body, "run-alert")
	assert.Contains(t, body, "RESOLUTION_SERVICE_FAILURE")
	assert.Contains(t, body, "No changes were applied to the master dataset.")
}

func TestRun_UnreachableDatabaseAlerts(t *testing.T) {
	mail := newMailSink(t)
	env := newTestEnv(t, "http://127.0.0.1:1/locate", mail.alertsYAML(t, "ops@example.com"))
	t.Setenv("STORESYNC_DATABASE_DSN", filepath.Join(env.dir, "missing", "stores.db"))

	root := &RootOptions{Format: "text", ConfigPath: env.config}
	opts := &RunOptions{RunIDs: testutil.NewFixedRunIDGenerator("run-down")}
	out, errOut, err := execute(t, newRunCmd(opts), root)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [QUERY_FAILURE]")
	assert.Contains(t, errOut, "run failed")

	body, ok := mail.message("ops@example.com")
	require.True(t, ok, "alert not delivered")
	assert.Contains(t, body, "run-down")
	assert.Contains(t, body, "QUERY_FAILURE")
	assert.Contains(t, body, "<b>startup</b>")
}

func TestRun_ConsumeQueue(t *testing.T) {
	locator := newLocator(t, map[string]string{"S3": "M"})
	env := newTestEnv(t, locator.URL, "sync:\n  consume_queue: true\n")
	env.seed(t, nil, []string{"S3"}, nil)

	root := &RootOptions{Format: "text", ConfigPath: env.config}
	_, _, err := execute(t, newRunCmd(&RunOptions{}), root)
	require.NoError(t, err)

	s := env.openStore(t)
	pending, err := s.CountDeltas(context.Background(), delta.KindNew)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRun_MissingConfig(t *testing.T) {
	root := &RootOptions{Format: "text", ConfigPath: "/nonexistent/storesync.yaml"}
	_, _, err := execute(t, newRunCmd(&RunOptions{}), root)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
