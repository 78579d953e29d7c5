// Package enclave invokes the TEE host binary that computes SHA-256 digests
// inside an isolated enclave. The orchestrator only sees the IntegrityHasher
// contract; that the computation runs in an external process is hidden here.
package enclave

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
)

var digestPattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

type Options struct {
	// HostPath is the enclave host executable.
	HostPath string
	// Simulate passes --simulate to the host (no SGX hardware required).
	Simulate bool
	// Timeout is the hard wall-clock limit per computation; on expiry the
	// host process is killed, never left running.
	Timeout time.Duration
}

type Hasher struct {
	hostPath string
	hostDir  string
	simulate bool
	timeout  time.Duration
}

func New(options Options) (*Hasher, error) {
	if strings.TrimSpace(options.HostPath) == "" {
		return nil, fmt.Errorf("enclave host path is required")
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hostPath, err := filepath.Abs(options.HostPath)
	if err != nil {
		return nil, fmt.Errorf("resolve host path: %w", err)
	}
	return &Hasher{
		hostPath: hostPath,
		hostDir:  filepath.Dir(hostPath),
		simulate: options.Simulate,
		timeout:  timeout,
	}, nil
}

// ComputeHash feeds data to the host over stdin and reads the digest from
// stdout. The host resolves its enclave image relative to its own
// directory, so the subprocess runs with that working directory.
func (h *Hasher) ComputeHash(ctx context.Context, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	args := make([]string, 0, 2)
	if h.simulate {
		args = append(args, "--simulate")
	}
	args = append(args, "-")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.hostPath, args...)
	cmd.Dir = h.hostDir
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// If the host ignores the kill long enough to wedge its pipes, give up
	// on them after a grace period instead of blocking Wait forever.
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", domain.WrapError(domain.ErrHashTimeout, "compute hash",
			fmt.Errorf("host killed after %s", h.timeout))
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", domain.WrapError(domain.ErrHashProcess, "compute hash", errors.New(detail))
	}

	digest := strings.TrimSpace(stdout.String())
	if !digestPattern.MatchString(digest) {
		return "", domain.WrapError(domain.ErrHashFormat, "compute hash",
			fmt.Errorf("unexpected digest %q", truncate(digest, 80)))
	}
	return strings.ToLower(digest), nil
}

// IsAvailable runs a canary computation and reports health without raising.
func (h *Hasher) IsAvailable(ctx context.Context) bool {
	_, err := h.ComputeHash(ctx, []byte("canary"))
	return err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
