package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/core/ports"
	"github.com/trustdoc/custody/internal/observability/metrics"
)

type ingestorFake struct {
	result domain.IngestResult
	err    error
	lastIn ports.IngestInput
}

func (f *ingestorFake) Ingest(_ context.Context, in ports.IngestInput) (domain.IngestResult, error) {
	f.lastIn = in
	return f.result, f.err
}

type removerFake struct {
	report domain.DeletionReport
	err    error
	lastIn ports.DeleteInput
}

func (f *removerFake) Delete(_ context.Context, in ports.DeleteInput) (domain.DeletionReport, error) {
	f.lastIn = in
	return f.report, f.err
}

type readerFake struct {
	doc  *domain.Document
	docs []domain.Document
	err  error
}

func (f *readerFake) Get(context.Context, string) (*domain.Document, error) {
	return f.doc, f.err
}

func (f *readerFake) ListByOwner(context.Context, string) ([]domain.Document, error) {
	return f.docs, f.err
}

func (f *readerFake) ListByOrganizationMembers(context.Context, []string) ([]domain.Document, error) {
	return f.docs, f.err
}

type lifecycleFake struct {
	doc *domain.Document
	err error
}

func (f *lifecycleFake) Sign(context.Context, string, string) (*domain.Document, error) {
	return f.doc, f.err
}

func (f *lifecycleFake) Revoke(context.Context, string, string) (*domain.Document, error) {
	return f.doc, f.err
}

func (f *lifecycleFake) Restore(context.Context, string, string) (*domain.Document, error) {
	return f.doc, f.err
}

type hasherHealthFake struct{ healthy bool }

func (f *hasherHealthFake) ComputeHash(context.Context, []byte) (string, error) {
	return "", errors.New("not used")
}

func (f *hasherHealthFake) IsAvailable(context.Context) bool { return f.healthy }

type routerFixture struct {
	ingestor  *ingestorFake
	remover   *removerFake
	reader    *readerFake
	lifecycle *lifecycleFake
	handler   http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		ingestor:  &ingestorFake{},
		remover:   &removerFake{},
		reader:    &readerFake{},
		lifecycle: &lifecycleFake{},
	}
	f.handler = NewRouter(Options{
		Ingestor:  f.ingestor,
		Remover:   f.remover,
		Reader:    f.reader,
		Lifecycle: f.lifecycle,
		Hasher:    &hasherHealthFake{healthy: true},
		Metrics:   metrics.NewHTTPServerMetrics("custody-api-test"),
	}).Handler()
	return f
}

func multipartUpload(t *testing.T, filename, title string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if title != "" {
		if err := writer.WriteField("title", title); err != nil {
			t.Fatalf("write title field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func doIngest(t *testing.T, f *routerFixture, withIdentity bool) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, "contract.pdf", "Contract", []byte("bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	if withIdentity {
		req.Header.Set(userIDHeader, "owner-1")
		req.Header.Set(userRoleHeader, "user")
	}
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	return res
}

func TestIngestSuccessReturns201(t *testing.T) {
	f := newRouterFixture(t)
	f.ingestor.result = domain.IngestResult{
		Status:   domain.IngestSuccess,
		Stage:    domain.StageRecorded,
		Document: &domain.Document{ID: "doc-1", OwnerID: "owner-1"},
	}

	res := doIngest(t, f, true)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if f.ingestor.lastIn.OwnerID != "owner-1" || f.ingestor.lastIn.Filename != "contract.pdf" {
		t.Fatalf("unexpected ingest input %+v", f.ingestor.lastIn)
	}
	if f.ingestor.lastIn.Title != "Contract" {
		t.Fatalf("title = %q", f.ingestor.lastIn.Title)
	}
}

func TestIngestWithoutIdentityReturns401(t *testing.T) {
	f := newRouterFixture(t)

	res := doIngest(t, f, false)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestIngestDegradedReturns207WithReconcileData(t *testing.T) {
	f := newRouterFixture(t)
	f.ingestor.result = domain.IngestResult{
		Status:         domain.IngestDegraded,
		Stage:          domain.StageRegistered,
		ContentHash:    "abc",
		ContentAddress: "QmAddr",
		LedgerID:       7,
		Err:            errors.New("db down"),
	}

	res := doIngest(t, f, true)
	if res.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", res.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["content_hash"] != "abc" || body["content_address"] != "QmAddr" || body["ledger_id"] != float64(7) {
		t.Fatalf("degraded body must carry reconcile references, got %v", body)
	}
}

func TestIngestDuplicateHashReturns409(t *testing.T) {
	f := newRouterFixture(t)
	f.ingestor.result = domain.IngestResult{Status: domain.IngestFailure, Stage: domain.StageStored}
	f.ingestor.err = domain.WrapError(domain.ErrDuplicateHash, "register record", errors.New("already active"))

	res := doIngest(t, f, true)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestIngestHashTimeoutReturns504(t *testing.T) {
	f := newRouterFixture(t)
	f.ingestor.result = domain.IngestResult{Status: domain.IngestFailure, Stage: domain.StageValidated}
	f.ingestor.err = domain.WrapError(domain.ErrHashTimeout, "compute hash", errors.New("killed"))

	res := doIngest(t, f, true)
	if res.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", res.Code)
	}
}

func doDelete(t *testing.T, f *routerFixture) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil)
	req.Header.Set(userIDHeader, "owner-1")
	req.Header.Set(userRoleHeader, "user")
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	return res
}

func TestDeleteStatusMapping(t *testing.T) {
	cases := []struct {
		status   domain.DeletionStatus
		wantCode int
	}{
		{status: domain.DeletionComplete, wantCode: http.StatusOK},
		{status: domain.DeletionPartial, wantCode: http.StatusMultiStatus},
		{status: domain.DeletionNone, wantCode: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			f := newRouterFixture(t)
			f.remover.report = domain.DeletionReport{Status: tc.status, Succeeded: []string{domain.BackendMetadata}}

			res := doDelete(t, f)
			if res.Code != tc.wantCode {
				t.Fatalf("status %s: expected %d, got %d", tc.status, tc.wantCode, res.Code)
			}
		})
	}
}

func TestDeleteForbiddenReturns403(t *testing.T) {
	f := newRouterFixture(t)
	f.remover.err = domain.WrapError(domain.ErrForbidden, "delete document", errors.New("not the owner"))

	res := doDelete(t, f)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
	if f.remover.lastIn.RequesterRole != domain.RoleUser {
		t.Fatalf("role not forwarded, got %q", f.remover.lastIn.RequesterRole)
	}
}

func TestGetDocumentNotFoundReturns404(t *testing.T) {
	f := newRouterFixture(t)
	f.reader.err = domain.WrapError(domain.ErrNotFound, "get document", errors.New("id missing"))

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListDocumentsRequiresOwnerOrMembers(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestListDocumentsByMembers(t *testing.T) {
	f := newRouterFixture(t)
	f.reader.docs = []domain.Document{{ID: "doc-1"}, {ID: "doc-2"}}

	req := httptest.NewRequest(http.MethodGet, "/v1/documents?member_ids=u1,u2", nil)
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Documents) != 2 {
		t.Fatalf("expected two documents, got %d", len(body.Documents))
	}
}

func TestSignConflictMapsToBadRequest(t *testing.T) {
	f := newRouterFixture(t)
	f.lifecycle.err = domain.WrapError(domain.ErrValidation, "sign document", errors.New("already signed"))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/sign", nil)
	req.Header.Set(userIDHeader, "owner-1")
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRestoreHashClaimedReturns409(t *testing.T) {
	f := newRouterFixture(t)
	f.lifecycle.err = domain.WrapError(domain.ErrLedgerHashClaimed, "restore record", errors.New("claimed"))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/restore", nil)
	req.Header.Set(userIDHeader, "owner-1")
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestHealthzReportsHasherOutage(t *testing.T) {
	f := &routerFixture{
		ingestor:  &ingestorFake{},
		remover:   &removerFake{},
		reader:    &readerFake{},
		lifecycle: &lifecycleFake{},
	}
	handler := NewRouter(Options{
		Ingestor:  f.ingestor,
		Remover:   f.remover,
		Reader:    f.reader,
		Lifecycle: f.lifecycle,
		Hasher:    &hasherHealthFake{healthy: false},
	}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with broken hasher, got %d", res.Code)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}
