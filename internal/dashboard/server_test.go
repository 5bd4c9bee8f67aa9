package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"multipush/internal/push"
)

func newTestServer(t *testing.T) (*Server, *push.Pool, *push.Reporter) {
	t.Helper()
	clock := &push.RealClock{}
	pool := push.NewPool(clock, &push.UUIDGenerator{}, push.NewNopLogger())
	reporter := push.NewReporter(clock, pool)
	return NewServer("127.0.0.1:0", reporter, pool, nil), pool, reporter
}

func TestProgressEndpoint(t *testing.T) {
	srv, _, reporter := newTestServer(t)
	reporter.Start(10, 2)
	reporter.Observe(true)
	reporter.Observe(false)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/progress")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var snap push.ProgressSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Total != 10 || snap.Uploaded != 1 || snap.Failed != 1 || snap.Skipped != 2 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Pending != 6 {
		t.Errorf("expected 6 pending, got %d", snap.Pending)
	}
}

func TestAccountsEndpoint(t *testing.T) {
	srv, pool, _ := newTestServer(t)
	pool.Register("acct-1", 100)
	pool.Register("acct-2", 200)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/accounts")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Accounts []struct {
			Name      string `json:"name"`
			Status    string `json:"status"`
			Remaining int    `json:"rate_limit_remaining"`
		} `json:"accounts"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %+v", body)
	}
	if body.Accounts[0].Name != "acct-1" || body.Accounts[0].Status != "active" || body.Accounts[0].Remaining != 100 {
		t.Errorf("unexpected first account: %+v", body.Accounts[0])
	}
}

func TestIndexServesHTML(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
}
