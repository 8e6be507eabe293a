package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("/healthz = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("/metrics did not expose the default registry")
	}
}

func TestCountersAcceptDomainLabels(t *testing.T) {
	before := testutil.ToFloat64(AuthLockoutsTotal.WithLabelValues("login"))
	AuthLockoutsTotal.WithLabelValues("login").Inc()
	if got := testutil.ToFloat64(AuthLockoutsTotal.WithLabelValues("login")); got != before+1 {
		t.Fatalf("auth_lockouts_total{kind=login} = %v, want %v", got, before+1)
	}
}
