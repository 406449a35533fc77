package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.SetProjects("inferred", 2)
	c.SetOpenFiles(1)
	c.Reload("full")
	c.Reconciled()
	c.SetWatches(3, 1)
	c.BuildNode(ResultBuilt)
	c.ObserveBuild(time.Second)
	if c.Registry() != nil {
		t.Error("nil collector should have no registry")
	}
}

func TestCollectorRecords(t *testing.T) {
	c := New()
	c.SetProjects("configured", 3)
	c.Reload("partial")
	c.Reload("partial")
	c.BuildNode(ResultSkipped)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`projd_projects{kind="configured"} 3`,
		`projd_reloads_total{level="partial"} 2`,
		`projd_build_nodes_total{result="skipped"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
