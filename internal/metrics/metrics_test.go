package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestRecordersExposeSeries(t *testing.T) {
	RecordRemoteCall("lookup", "ok", 3*time.Millisecond)
	RecordRemoteRetry("list")
	RecordDirEntries(2)
	RecordFSOperation("mkdir", false)
	RecordListingTruncated()

	out := scrape(t)
	for _, want := range []string{
		`networkfs_remote_calls_total{method="lookup",outcome="ok"}`,
		`networkfs_remote_call_retries_total{method="list"}`,
		`networkfs_fs_operations_total{method="mkdir",status="error"}`,
		`networkfs_listings_truncated_total`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/fs/{method}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fs/list?inode=1000", nil))

	out := scrape(t)
	if !strings.Contains(out, `networkfs_http_requests_total{method="GET",path="/fs/{method}",status="401"}`) {
		t.Errorf("expected route-pattern label in output")
	}
}

func nodesGauge(t *testing.T) float64 {
	t.Helper()
	for _, line := range strings.Split(scrape(t), "\n") {
		if v, ok := strings.CutPrefix(line, "networkfs_nodes_materialized "); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				t.Fatal(err)
			}
			return f
		}
	}
	t.Fatal("networkfs_nodes_materialized not exported")
	return 0
}

func TestNodesMaterializedIsCumulative(t *testing.T) {
	before := nodesGauge(t)
	AddNodesMaterialized(5)
	AddNodesMaterialized(1)
	AddNodesMaterialized(-2)
	if got := nodesGauge(t) - before; got != 4 {
		t.Errorf("gauge moved by %v, want 4", got)
	}
	AddNodesMaterialized(-4)
}
