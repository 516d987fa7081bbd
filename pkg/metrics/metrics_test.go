package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCollects(t *testing.T) {
	r := New("v1.2.3", "release")
	r.ObserveStage("build", "oneauth", 2*time.Second)
	r.SetArtifactSize("oneauth", "linux", "amd64", "archive", 1024)
	r.Failed("upload")

	if got := testutil.ToFloat64(r.artifactBytes.WithLabelValues("oneauth", "linux", "amd64", "archive")); got != 1024 {
		t.Fatalf("artifact_bytes = %v, want 1024", got)
	}
	if got := testutil.ToFloat64(r.failures.WithLabelValues("upload")); got != 1 {
		t.Fatalf("stage_failures_total = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.stageSeconds); got != 1 {
		t.Fatalf("stage_duration_seconds series = %d, want 1", got)
	}
}

func TestFlushTextfile(t *testing.T) {
	r := New("v0.0.42", "test")
	r.ObserveStage("package", "oneauth-server", time.Second)

	path := filepath.Join(t.TempDir(), "relmake.prom")
	if err := r.Flush(context.Background(), path, ""); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, want := range []string{
		`relmake_release_info{channel="test",version="v0.0.42"} 1`,
		`relmake_stage_duration_seconds_count{app="oneauth-server",stage="package"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveStage("build", "x", time.Second)
	r.SetArtifactSize("x", "linux", "amd64", "binary", 1)
	r.Failed("build")
	if err := r.Flush(context.Background(), "ignored", "ignored"); err != nil {
		t.Fatalf("Flush() on nil recorder error = %v", err)
	}
}
