package ipfs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trustdoc/custody/internal/core/domain"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

type daemonCall struct {
	path  string
	query map[string][]string
}

// fakeDaemon records RPC calls and serves canned per-endpoint responses.
type fakeDaemon struct {
	t         *testing.T
	calls     []daemonCall
	responses map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, *Client) {
	t.Helper()
	daemon := &fakeDaemon{t: t, responses: map[string]func(http.ResponseWriter, *http.Request){}}
	server := httptest.NewServer(daemon)
	t.Cleanup(server.Close)
	return daemon, New(server.URL)
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		d.t.Errorf("RPC API call used %s, want POST", r.Method)
	}
	d.calls = append(d.calls, daemonCall{path: r.URL.Path, query: r.URL.Query()})
	if handler, ok := d.responses[r.URL.Path]; ok {
		handler(w, r)
		return
	}
	w.Write([]byte(`{}`))
}

func (d *fakeDaemon) respond(path string, status int, body string) {
	d.responses[path] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func (d *fakeDaemon) called(path string) int {
	count := 0
	for _, call := range d.calls {
		if call.path == path {
			count++
		}
	}
	return count
}

func TestAddReturnsContentAddress(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.responses["/api/v0/add"] = func(w http.ResponseWriter, r *http.Request) {
		if pin := r.URL.Query().Get("pin"); pin != "false" {
			t.Errorf("add pin = %q, want false (pinning is a separate step)", pin)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("add request missing multipart file: %v", err)
		}
		payload, _ := io.ReadAll(file)
		if string(payload) != "hello custody" {
			t.Errorf("add payload = %q", payload)
		}
		json.NewEncoder(w).Encode(map[string]any{"Hash": testCID, "Size": "13"})
	}

	address, err := client.Add(context.Background(), []byte("hello custody"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if address != testCID {
		t.Fatalf("Add() = %s, want %s", address, testCID)
	}
}

func TestAddDaemonErrorWrapped(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.respond("/api/v0/add", http.StatusInternalServerError, `{"Message":"repo is locked","Code":0}`)

	_, err := client.Add(context.Background(), []byte("x"))
	if !domain.IsKind(err, domain.ErrContentStore) {
		t.Fatalf("expected ErrContentStore, got %v", err)
	}
}

func TestPinForwardsAddress(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.responses["/api/v0/pin/add"] = func(w http.ResponseWriter, r *http.Request) {
		if arg := r.URL.Query().Get("arg"); arg != testCID {
			t.Errorf("pin arg = %q, want %s", arg, testCID)
		}
		json.NewEncoder(w).Encode(map[string]any{"Pins": []string{testCID}})
	}

	if err := client.Pin(context.Background(), testCID); err != nil {
		t.Fatalf("Pin() error = %v", err)
	}
}

func TestPublishCreatesDirectoryAndCopies(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.responses["/api/v0/files/cp"] = func(w http.ResponseWriter, r *http.Request) {
		args := r.URL.Query()["arg"]
		if len(args) != 2 || args[0] != "/ipfs/"+testCID || args[1] != "/custody/owner-1/doc.pdf" {
			t.Errorf("cp args = %v", args)
		}
		w.Write([]byte(`{}`))
	}

	err := client.Publish(context.Background(), testCID, "/custody/owner-1/doc.pdf")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if daemon.called("/api/v0/files/mkdir") != 1 {
		t.Fatalf("expected parent directory creation")
	}
}

func TestPublishIsIdempotent(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.respond("/api/v0/files/mkdir", http.StatusInternalServerError, `{"Message":"file already exists","Code":0}`)
	daemon.respond("/api/v0/files/cp", http.StatusInternalServerError, `{"Message":"directory already has entry by that name","Code":0}`)

	if err := client.Publish(context.Background(), testCID, "/custody/owner-1/doc.pdf"); err != nil {
		t.Fatalf("re-publishing an existing path must succeed, got %v", err)
	}
}

func TestListReturnsEntries(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.respond("/api/v0/files/ls", http.StatusOK,
		`{"Entries":[{"Name":"doc.pdf","Type":0,"Size":42,"Hash":"`+testCID+`"}]}`)

	entries, err := client.List(context.Background(), "/custody/owner-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Name != "doc.pdf" || entries[0].Address != testCID || entries[0].Size != 42 {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestListAbsentPathYieldsEmpty(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.respond("/api/v0/files/ls", http.StatusInternalServerError, `{"Message":"file does not exist","Code":0}`)

	entries, err := client.List(context.Background(), "/custody/nobody")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty listing, got %v", entries)
	}
}

func TestUnpinToleratesNotPinned(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.respond("/api/v0/pin/rm", http.StatusInternalServerError, `{"Message":"not pinned or pinned indirectly","Code":0}`)

	if err := client.Unpin(context.Background(), testCID); err != nil {
		t.Fatalf("Unpin() of unpinned content must succeed, got %v", err)
	}
}

func TestUnpinFailureWrapped(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.respond("/api/v0/pin/rm", http.StatusInternalServerError, `{"Message":"repo is locked","Code":0}`)

	err := client.Unpin(context.Background(), testCID)
	if !domain.IsKind(err, domain.ErrContentReclaim) {
		t.Fatalf("expected ErrContentReclaim, got %v", err)
	}
}

func TestReclaimRunsGarbageCollection(t *testing.T) {
	daemon, client := newFakeDaemon(t)
	daemon.respond("/api/v0/repo/gc", http.StatusOK, `{"Key":{"/":"`+testCID+`"}}`)

	if err := client.Reclaim(context.Background()); err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}
	if daemon.called("/api/v0/repo/gc") != 1 {
		t.Fatalf("expected gc call")
	}
}
