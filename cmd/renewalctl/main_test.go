package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer records requests and replies with a canned body.
type fakeServer struct {
	t      *testing.T
	status int
	body   any
	method string
	path   string
	query  string
	req    map[string]any
}

func newFakeServer(t *testing.T, status int, body any) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{t: t, status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.method = r.Method
		f.path = r.URL.Path
		f.query = r.URL.RawQuery
		if r.Body != nil && r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&f.req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(f.body)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func run(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", serverURL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func envelope(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"reprocess", "reanalyze", "status", "alerts", "credits", "purchase", "health"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestReprocess(t *testing.T) {
	id := uuid.New()
	f, srv := newFakeServer(t, http.StatusAccepted, envelope(map[string]any{"contract_id": id, "started": true}))

	out, err := run(t, srv.URL, "reprocess", id.String())

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, f.method)
	assert.Equal(t, "/api/contracts/"+id.String()+"/reprocess", f.path)
	assert.Contains(t, out, "Extraction started")
}

func TestReprocess_AlreadyRunning(t *testing.T) {
	id := uuid.New()
	_, srv := newFakeServer(t, http.StatusOK, envelope(map[string]any{"contract_id": id, "started": false}))

	out, err := run(t, srv.URL, "reprocess", id.String())

	require.NoError(t, err)
	assert.Contains(t, out, "already running")
}

func TestReprocess_InvalidID(t *testing.T) {
	f, srv := newFakeServer(t, http.StatusOK, nil)

	_, err := run(t, srv.URL, "reprocess", "not-a-uuid")

	require.Error(t, err)
	assert.Empty(t, f.path)
}

func TestReanalyze_Force(t *testing.T) {
	id := uuid.New()
	f, srv := newFakeServer(t, http.StatusOK, envelope(map[string]any{
		"contract_id":       id,
		"ai_status":         "completed",
		"credits_remaining": 2,
		"committed":         []string{"end_date", "notice_period_days"},
	}))

	out, err := run(t, srv.URL, "reanalyze", "--force", id.String())

	require.NoError(t, err)
	assert.Equal(t, "force=true", f.query)
	assert.Contains(t, out, "2 remaining")
	assert.Contains(t, out, "end_date, notice_period_days")
}

func TestReanalyze_InsufficientCredits(t *testing.T) {
	_, srv := newFakeServer(t, http.StatusPaymentRequired, map[string]string{
		"error":   "insufficient_credits",
		"message": "insufficient credits",
	})

	_, err := run(t, srv.URL, "reanalyze", uuid.NewString())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusPaymentRequired, statusErr.StatusCode)
	assert.Equal(t, "insufficient_credits", statusErr.Code)
}

func TestStatus_JSONOutput(t *testing.T) {
	id := uuid.New()
	_, srv := newFakeServer(t, http.StatusOK, envelope(map[string]any{
		"contract_id": id,
		"ocr_status":  "completed",
		"ai_status":   "pending",
	}))

	out, err := run(t, srv.URL, "--json", "status", id.String())

	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "completed", decoded["ocr_status"])
}

func TestAlerts_Table(t *testing.T) {
	id := uuid.New()
	_, srv := newFakeServer(t, http.StatusOK, envelope([]map[string]any{{
		"id":            uuid.New(),
		"contract_id":   id,
		"type":          "notice_deadline",
		"offset_days":   0,
		"scheduled_for": "2026-11-01T00:00:00Z",
		"status":        "pending",
		"message":       "Last day to give notice",
	}}))

	out, err := run(t, srv.URL, "alerts", id.String())

	require.NoError(t, err)
	assert.Contains(t, out, "2026-11-01")
	assert.Contains(t, out, "notice_deadline")
}

func TestAlerts_Empty(t *testing.T) {
	_, srv := newFakeServer(t, http.StatusOK, envelope([]any{}))

	out, err := run(t, srv.URL, "alerts", uuid.NewString())

	require.NoError(t, err)
	assert.Contains(t, out, "No alerts scheduled.")
}

func TestPurchase(t *testing.T) {
	userID := uuid.New()
	f, srv := newFakeServer(t, http.StatusOK, envelope(map[string]any{
		"remaining":     15,
		"monthly_limit": 10,
		"purchased":     5,
		"reset_date":    "2026-11-01T00:00:00Z",
	}))

	out, err := run(t, srv.URL, "purchase", userID.String(), "--amount", "5")

	require.NoError(t, err)
	assert.Equal(t, "/api/users/"+userID.String()+"/credits/purchase", f.path)
	assert.Equal(t, float64(5), f.req["amount"])
	assert.Contains(t, out, "Remaining:        15")
}

func TestPurchase_RejectsNonPositiveAmount(t *testing.T) {
	f, srv := newFakeServer(t, http.StatusOK, nil)

	_, err := run(t, srv.URL, "purchase", uuid.NewString(), "--amount", "0")

	require.Error(t, err)
	assert.Empty(t, f.path)
}

func TestHealth(t *testing.T) {
	_, srv := newFakeServer(t, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      "1.2.3",
		"environment":  "local",
		"ai_available": true,
		"tasks":        map[string]int{"total": 4, "running": 1},
	})

	out, err := run(t, srv.URL, "health")

	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, "Semantic analysis: available")
	assert.Contains(t, out, "1 running")
}
