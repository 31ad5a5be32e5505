package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hostplane/internal/approvals"
	"hostplane/internal/auth"
	"hostplane/internal/cache"
	"hostplane/internal/common"
)

const testJwtSecret = "test-jwt-secret-test-jwt-secret!"

func newTestServer(t *testing.T, f *testFixture, rateLimitCache cache.Cache, rateLimit int64) *httptest.Server {
	t.Helper()
	router := newRouter(StartHttpServerOpts{
		Engine:             f.engine,
		ServiceLogs:        common.GetNoopServiceLog(),
		JwtSecret:          testJwtSecret,
		Cache:              rateLimitCache,
		RateLimitPerMinute: rateLimit,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func tokenFor(t *testing.T, userId string) string {
	t.Helper()
	token, err := auth.GenerateJwt(auth.GenerateJwtOpts{
		Secret:   testJwtSecret,
		UserId:   userId,
		Username: userId,
		Ttl:      time.Hour,
	})
	if err != nil {
		t.Fatalf("GenerateJwt returned error: %v", err)
	}
	return token
}

func doRequest(t *testing.T, server *httptest.Server, method, path, token string, body []byte) (*http.Response, common.HttpResponse) {
	t.Helper()
	var requestBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		requestBody = bytes.NewBuffer(body)
	}
	request, err := http.NewRequest(method, server.URL+path, requestBody)
	if err != nil {
		t.Fatalf("NewRequest returned error: %v", err)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	var decoded common.HttpResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return response, decoded
}

func decodeRecord(t *testing.T, decoded common.HttpResponse) *approvals.Request {
	t.Helper()
	data, err := json.Marshal(decoded.Data)
	if err != nil {
		t.Fatalf("failed to re-marshal response data: %v", err)
	}
	var record approvals.Request
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	return &record
}

func TestHttpRequiresToken(t *testing.T) {
	f := newTestFixture(t, nil)
	server := newTestServer(t, f, nil, 0)

	response, _ := doRequest(t, server, http.MethodGet, "/api/v1/requests", "", nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", response.StatusCode)
	}

	response, _ = doRequest(t, server, http.MethodGet, "/api/v1/requests", "not-a-jwt", nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", response.StatusCode)
	}
}

func TestHttpSubmitAndLifecycle(t *testing.T) {
	f := newTestFixture(t, nil)
	server := newTestServer(t, f, nil, 0)

	body, _ := json.Marshal(submitRequestBody{
		OperationType: string(approvals.OperationServiceStop),
		Payload:       json.RawMessage(`{"service":"nginx"}`),
	})
	response, decoded := doRequest(t, server, http.MethodPost, "/api/v1/requests", tokenFor(t, "requester"), body)
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", response.StatusCode, decoded.Message)
	}
	record := decodeRecord(t, decoded)
	if record.RequesterId != "requester" {
		t.Errorf("expected requester id from token, got %s", record.RequesterId)
	}

	// self approval is refused with 403
	response, _ = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/approve", record.Id), tokenFor(t, "requester"), nil)
	if response.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", response.StatusCode)
	}

	response, decoded = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/approve", record.Id), tokenFor(t, "alice"), nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", response.StatusCode, decoded.Message)
	}

	response, decoded = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/approve", record.Id), tokenFor(t, "bob"), nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", response.StatusCode, decoded.Message)
	}
	updated := decodeRecord(t, decoded)
	if updated.Status != approvals.StatusExecuted {
		t.Errorf("expected status executed, got %s", updated.Status)
	}

	// further decisions conflict with the terminal state
	response, _ = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/reject", record.Id), tokenFor(t, "carol"), nil)
	if response.StatusCode != http.StatusConflict {
		t.Errorf("expected status 409, got %d", response.StatusCode)
	}
}

func TestHttpValidationFailure(t *testing.T) {
	f := newTestFixture(t, nil)
	server := newTestServer(t, f, nil, 0)

	body, _ := json.Marshal(submitRequestBody{
		OperationType: string(approvals.OperationServiceStop),
		Payload:       json.RawMessage(`{"service":"nginx; rm -rf /"}`),
	})
	response, _ := doRequest(t, server, http.MethodPost, "/api/v1/requests", tokenFor(t, "requester"), body)
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", response.StatusCode)
	}
}

func TestHttpGetUnknownRequest(t *testing.T) {
	f := newTestFixture(t, nil)
	server := newTestServer(t, f, nil, 0)

	response, _ := doRequest(t, server, http.MethodGet, "/api/v1/requests/missing", tokenFor(t, "requester"), nil)
	if response.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", response.StatusCode)
	}
}

func TestHttpListWithFilter(t *testing.T) {
	f := newTestFixture(t, nil)
	server := newTestServer(t, f, nil, 0)
	submitServiceStop(t, f, "requester")
	submitServiceStop(t, f, "someone-else")

	response, decoded := doRequest(t, server, http.MethodGet, "/api/v1/requests?requesterId=requester&status=pending", tokenFor(t, "viewer"), nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", response.StatusCode)
	}
	data, _ := json.Marshal(decoded.Data)
	var records []approvals.Request
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("failed to decode records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].RequesterId != "requester" {
		t.Errorf("expected requester's record, got %s", records[0].RequesterId)
	}
}

func TestHttpVerifyEndpoint(t *testing.T) {
	f := newTestFixture(t, nil)
	server := newTestServer(t, f, nil, 0)
	record := submitServiceStop(t, f, "requester")
	if _, err := f.engine.Approve(record.Id, "alice"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	response, decoded := doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/v1/requests/%s/verify", record.Id), tokenFor(t, "auditor"), nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", response.StatusCode)
	}
	data, _ := json.Marshal(decoded.Data)
	var verification verifyResponse
	if err := json.Unmarshal(data, &verification); err != nil {
		t.Fatalf("failed to decode verification: %v", err)
	}
	if !verification.Valid {
		t.Errorf("expected signatures to verify, got invalid %v", verification.InvalidSignatures)
	}
}

func TestHttpRateLimitsWrites(t *testing.T) {
	f := newTestFixture(t, nil)
	server := newTestServer(t, f, cache.NewMemory(), 2)

	body, _ := json.Marshal(submitRequestBody{
		OperationType: string(approvals.OperationServiceStop),
		Payload:       json.RawMessage(`{"service":"nginx"}`),
	})
	token := tokenFor(t, "requester")
	for i := 0; i < 2; i++ {
		response, decoded := doRequest(t, server, http.MethodPost, "/api/v1/requests", token, body)
		if response.StatusCode != http.StatusCreated {
			t.Fatalf("expected status 201 on request %d, got %d (%s)", i, response.StatusCode, decoded.Message)
		}
	}
	response, _ := doRequest(t, server, http.MethodPost, "/api/v1/requests", token, body)
	if response.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", response.StatusCode)
	}

	// reads stay unaffected
	response, _ = doRequest(t, server, http.MethodGet, "/api/v1/requests", token, nil)
	if response.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", response.StatusCode)
	}
}
