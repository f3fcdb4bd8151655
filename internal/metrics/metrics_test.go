package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if applicationsInsertedTotal == nil || scrapeCyclesTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpersAndHandler(t *testing.T) {
	Init()

	ObserveMerge(3, 1)
	ObserveSkip("duplicate_in_store")
	ObserveScrapeCycle("succeeded", 2*time.Second)
	ObserveReconcilePass("succeeded", 2)
	ObserveHTTPRequest(http.MethodGet, "/v1/applications", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"tracker_applications_inserted_total",
		"tracker_cards_skipped_total",
		"tracker_scrape_cycles_total",
		"tracker_reconcile_passes_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
