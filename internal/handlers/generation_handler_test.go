package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/lumagen/backend/internal/ledger"
	"github.com/lumagen/backend/internal/middleware"
	"github.com/lumagen/backend/internal/models"
	"github.com/lumagen/backend/internal/repository"
	"github.com/lumagen/backend/internal/services"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockLifecycle scripts each operation's outcome.
type mockLifecycle struct {
	submitResult *models.GenerationRequest
	submitErr    error

	cancelRefund int
	cancelErr    error

	listResult []*models.GenerationRequest
	listTotal  int

	detail    *services.RequestDetail
	detailErr error

	lastFilters repository.RequestFilters
	lastLimit   int
	lastOffset  int
}

func (m *mockLifecycle) Submit(_ context.Context, _ uuid.UUID, _ services.SubmitParams) (*models.GenerationRequest, error) {
	return m.submitResult, m.submitErr
}

func (m *mockLifecycle) Cancel(_ context.Context, _, _ uuid.UUID) (int, error) {
	return m.cancelRefund, m.cancelErr
}

func (m *mockLifecycle) List(_ context.Context, _ uuid.UUID, f repository.RequestFilters, limit, offset int) ([]*models.GenerationRequest, int, error) {
	m.lastFilters, m.lastLimit, m.lastOffset = f, limit, offset
	return m.listResult, m.listTotal, nil
}

func (m *mockLifecycle) GetByID(_ context.Context, _, _ uuid.UUID) (*services.RequestDetail, error) {
	return m.detail, m.detailErr
}

func authedRequest(method, target string, body []byte) *http.Request {
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	user := &models.User{ID: uuid.New(), SubscriptionTier: models.TierFree}
	return r.WithContext(middleware.WithUser(r.Context(), user))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return payload.Error
}

func TestGenerate_Accepted(t *testing.T) {
	gr := &models.GenerationRequest{
		ID:             uuid.New(),
		Status:         models.RequestStatusPending,
		CreditsCharged: 10,
	}
	h := &GenerationHandler{Lifecycle: &mockLifecycle{submitResult: gr}, Logger: testLogger}

	body, _ := json.Marshal(map[string]any{
		"model_id":    uuid.NewString(),
		"prompt":      "a lighthouse in fog",
		"num_outputs": 2,
	})
	rec := httptest.NewRecorder()
	h.Generate(rec, authedRequest(http.MethodPost, "/api/v1/generate", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	var got generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.RequestID != gr.ID.String() || got.Status != models.RequestStatusPending || got.CreditsCharged != 10 {
		t.Errorf("response: got %+v", got)
	}
}

func TestGenerate_InsufficientCredits(t *testing.T) {
	h := &GenerationHandler{
		Lifecycle: &mockLifecycle{submitErr: &ledger.InsufficientCreditsError{Required: 10, Available: 3}},
		Logger:    testLogger,
	}

	body, _ := json.Marshal(map[string]any{"model_id": uuid.NewString(), "prompt": "x"})
	rec := httptest.NewRecorder()
	h.Generate(rec, authedRequest(http.MethodPost, "/api/v1/generate", body))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status: got %d, want 402", rec.Code)
	}
	errBody := decodeError(t, rec)
	if errBody["reason"] != "insufficient_credits" {
		t.Errorf("reason: got %v", errBody["reason"])
	}
	if errBody["required"] != float64(10) || errBody["available"] != float64(3) {
		t.Errorf("amounts: got required=%v available=%v, want 10/3", errBody["required"], errBody["available"])
	}
}

func TestGenerate_BadRequests(t *testing.T) {
	h := &GenerationHandler{Lifecycle: &mockLifecycle{submitErr: services.ErrInvalidModel}, Logger: testLogger}

	cases := []struct {
		name   string
		body   string
		reason string
	}{
		{"invalid json", `{not json`, "validation_failed"},
		{"bad model id", `{"model_id":"not-a-uuid","prompt":"x"}`, "validation_failed"},
		{"unknown model", `{"model_id":"` + uuid.NewString() + `","prompt":"x"}`, "invalid_model"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Generate(rec, authedRequest(http.MethodPost, "/api/v1/generate", []byte(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rec.Code)
			}
			if errBody := decodeError(t, rec); errBody["reason"] != tc.reason {
				t.Errorf("reason: got %v, want %s", errBody["reason"], tc.reason)
			}
		})
	}
}

func TestGenerate_Unauthenticated(t *testing.T) {
	h := &GenerationHandler{Lifecycle: &mockLifecycle{}, Logger: testLogger}

	rec := httptest.NewRecorder()
	h.Generate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/generate", bytes.NewReader([]byte(`{}`))))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestListRequests_Pagination(t *testing.T) {
	lc := &mockLifecycle{
		listResult: []*models.GenerationRequest{{ID: uuid.New()}, {ID: uuid.New()}},
		listTotal:  7,
	}
	h := &GenerationHandler{Lifecycle: lc, Logger: testLogger}

	rec := httptest.NewRecorder()
	h.ListRequests(rec, authedRequest(http.MethodGet, "/api/v1/generation-requests?status=pending&limit=2&offset=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if lc.lastFilters.Status != models.RequestStatusPending || lc.lastLimit != 2 || lc.lastOffset != 2 {
		t.Errorf("passthrough: filters=%+v limit=%d offset=%d", lc.lastFilters, lc.lastLimit, lc.lastOffset)
	}
	var payload struct {
		Requests   []json.RawMessage `json:"requests"`
		Pagination paginationMeta    `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Requests) != 2 {
		t.Errorf("requests: got %d, want 2", len(payload.Requests))
	}
	want := paginationMeta{Total: 7, Limit: 2, Offset: 2, HasMore: true}
	if payload.Pagination != want {
		t.Errorf("pagination: got %+v, want %+v", payload.Pagination, want)
	}
}

func TestListRequests_InvalidStatusFilter(t *testing.T) {
	h := &GenerationHandler{Lifecycle: &mockLifecycle{}, Logger: testLogger}

	rec := httptest.NewRecorder()
	h.ListRequests(rec, authedRequest(http.MethodGet, "/api/v1/generation-requests?status=sideways", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestGetRequest(t *testing.T) {
	requestID := uuid.New()
	detail := &services.RequestDetail{
		Request: &models.GenerationRequest{ID: requestID, Status: models.RequestStatusCompleted},
		Images:  []*models.Image{{ID: uuid.New(), RequestID: requestID, URL: "http://img/1.png"}},
		Ledger:  []*models.LedgerEntry{{ID: uuid.New(), TransactionType: models.LedgerTypeConsumption, Amount: -5}},
	}
	h := &GenerationHandler{Lifecycle: &mockLifecycle{detail: detail}, Logger: testLogger}

	req := authedRequest(http.MethodGet, "/api/v1/generation-requests/"+requestID.String(), nil)
	req.SetPathValue("id", requestID.String())
	rec := httptest.NewRecorder()
	h.GetRequest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got services.RequestDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Request.ID != requestID || len(got.Images) != 1 || len(got.Ledger) != 1 {
		t.Errorf("detail: got %+v", got)
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	h := &GenerationHandler{Lifecycle: &mockLifecycle{detailErr: services.ErrNotFound}, Logger: testLogger}

	req := authedRequest(http.MethodGet, "/api/v1/generation-requests/"+uuid.NewString(), nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()
	h.GetRequest(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestCancelRequest(t *testing.T) {
	requestID := uuid.New()

	cases := []struct {
		name       string
		lc         *mockLifecycle
		wantStatus int
		wantReason string
	}{
		{"success", &mockLifecycle{cancelRefund: 8}, http.StatusOK, ""},
		{"terminal state", &mockLifecycle{cancelErr: services.ErrInvalidState}, http.StatusBadRequest, "invalid_state"},
		{"not found", &mockLifecycle{cancelErr: services.ErrNotFound}, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &GenerationHandler{Lifecycle: tc.lc, Logger: testLogger}
			req := authedRequest(http.MethodPost, "/api/v1/generation-requests/"+requestID.String()+"/cancel", nil)
			req.SetPathValue("id", requestID.String())
			rec := httptest.NewRecorder()
			h.CancelRequest(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantReason != "" {
				if errBody := decodeError(t, rec); errBody["reason"] != tc.wantReason {
					t.Errorf("reason: got %v, want %s", errBody["reason"], tc.wantReason)
				}
				return
			}
			var resp cancelResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.RefundedCredits != 8 || resp.Status != models.RequestStatusFailed {
				t.Errorf("response: got %+v", resp)
			}
		})
	}
}
