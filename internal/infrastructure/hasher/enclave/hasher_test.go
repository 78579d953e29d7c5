package enclave

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
)

// writeHost drops an executable stand-in for the enclave host binary.
func writeHost(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trustdoc_host")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write host script: %v", err)
	}
	return path
}

func newTestHasher(t *testing.T, script string, timeout time.Duration) *Hasher {
	t.Helper()
	h, err := New(Options{HostPath: writeHost(t, script), Simulate: true, Timeout: timeout})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func TestComputeHashReturnsLowercaseDigest(t *testing.T) {
	h := newTestHasher(t, `cat >/dev/null; echo 9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08`, time.Second)

	digest, err := h.ComputeHash(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatalf("ComputeHash() error = %v", err)
	}
	if digest != "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08" {
		t.Fatalf("expected normalized lowercase digest, got %s", digest)
	}
}

func TestComputeHashIsDeterministic(t *testing.T) {
	if _, err := exec.LookPath("sha256sum"); err != nil {
		t.Skip("sha256sum not available")
	}
	h := newTestHasher(t, `sha256sum - | cut -d' ' -f1`, 5*time.Second)

	first, err := h.ComputeHash(context.Background(), []byte("buffer A"))
	if err != nil {
		t.Fatalf("first ComputeHash() error = %v", err)
	}
	second, err := h.ComputeHash(context.Background(), []byte("buffer A"))
	if err != nil {
		t.Fatalf("second ComputeHash() error = %v", err)
	}
	if first != second {
		t.Fatalf("same input produced different digests: %s vs %s", first, second)
	}
	other, err := h.ComputeHash(context.Background(), []byte("buffer B"))
	if err != nil {
		t.Fatalf("third ComputeHash() error = %v", err)
	}
	if other == first {
		t.Fatalf("different inputs produced identical digests")
	}
}

func TestComputeHashTimeoutKillsProcess(t *testing.T) {
	h := newTestHasher(t, `sleep 10`, 100*time.Millisecond)

	start := time.Now()
	_, err := h.ComputeHash(context.Background(), []byte("slow"))
	if !domain.IsKind(err, domain.ErrHashTimeout) {
		t.Fatalf("expected ErrHashTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout did not terminate the host promptly (%s)", elapsed)
	}
}

func TestComputeHashProcessFailure(t *testing.T) {
	h := newTestHasher(t, `cat >/dev/null; echo "enclave init failed" >&2; exit 3`, time.Second)

	_, err := h.ComputeHash(context.Background(), []byte("boom"))
	if !domain.IsKind(err, domain.ErrHashProcess) {
		t.Fatalf("expected ErrHashProcess, got %v", err)
	}
}

func TestComputeHashMissingHost(t *testing.T) {
	h, err := New(Options{HostPath: filepath.Join(t.TempDir(), "missing_host"), Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = h.ComputeHash(context.Background(), []byte("x"))
	if !domain.IsKind(err, domain.ErrHashProcess) {
		t.Fatalf("expected ErrHashProcess for missing host, got %v", err)
	}
}

func TestComputeHashRejectsMalformedDigest(t *testing.T) {
	h := newTestHasher(t, `cat >/dev/null; echo not-a-digest`, time.Second)

	_, err := h.ComputeHash(context.Background(), []byte("x"))
	if !domain.IsKind(err, domain.ErrHashFormat) {
		t.Fatalf("expected ErrHashFormat, got %v", err)
	}
}

func TestIsAvailable(t *testing.T) {
	healthy := newTestHasher(t, `cat >/dev/null; echo 9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08`, time.Second)
	if !healthy.IsAvailable(context.Background()) {
		t.Fatalf("expected healthy hasher")
	}

	broken := newTestHasher(t, `exit 1`, time.Second)
	if broken.IsAvailable(context.Background()) {
		t.Fatalf("expected unhealthy hasher")
	}
}
