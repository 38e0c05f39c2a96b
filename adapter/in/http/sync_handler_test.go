package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"voiceout_server/core/port/in"
	"voiceout_server/infra/middleware"
	"voiceout_server/pkg/apperr"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

type fakeSyncUseCase struct {
	result *in.SyncResult
	err    error
	calls  []int64
}

func (f *fakeSyncUseCase) SyncConnection(_ context.Context, connectionID int64) (*in.SyncResult, error) {
	f.calls = append(f.calls, connectionID)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestApp(uc in.SyncUseCase) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	api := app.Group("/api/v1")
	NewSyncHandler(uc).Register(api)
	return app
}

func postSync(t *testing.T, app *fiber.App, body string) (*http.Response, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response %q: %v", raw, err)
	}
	return resp, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestSyncEndpointSuccess(t *testing.T) {
	uc := &fakeSyncUseCase{result: &in.SyncResult{EmailsFetched: 5, InquiriesCreated: 2}}
	app := newTestApp(uc)

	resp, body := postSync(t, app, `{"connectionId": "42"}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["emailsFetched"] != float64(5) {
		t.Errorf("emailsFetched = %v, want 5", body["emailsFetched"])
	}
	if body["inquiriesCreated"] != float64(2) {
		t.Errorf("inquiriesCreated = %v, want 2", body["inquiriesCreated"])
	}
	if len(uc.calls) != 1 || uc.calls[0] != 42 {
		t.Errorf("use case calls = %v, want [42]", uc.calls)
	}
}

func TestSyncEndpointMissingConnectionID(t *testing.T) {
	uc := &fakeSyncUseCase{}
	app := newTestApp(uc)

	resp, body := postSync(t, app, `{}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, body); code != apperr.CodeMissingField {
		t.Errorf("error code = %q, want %q", code, apperr.CodeMissingField)
	}
	if len(uc.calls) != 0 {
		t.Errorf("use case calls = %v, want none", uc.calls)
	}
}

func TestSyncEndpointInvalidConnectionID(t *testing.T) {
	uc := &fakeSyncUseCase{}
	app := newTestApp(uc)

	resp, body := postSync(t, app, `{"connectionId": "not-a-number"}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, body); code != apperr.CodeValidation {
		t.Errorf("error code = %q, want %q", code, apperr.CodeValidation)
	}
}

func TestSyncEndpointUnknownConnection(t *testing.T) {
	uc := &fakeSyncUseCase{err: apperr.NotFound("email connection")}
	app := newTestApp(uc)

	resp, body := postSync(t, app, `{"connectionId": "99"}`)

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if code := errorCode(t, body); code != apperr.CodeNotFound {
		t.Errorf("error code = %q, want %q", code, apperr.CodeNotFound)
	}
}

func TestSyncEndpointPipelineFailure(t *testing.T) {
	uc := &fakeSyncUseCase{err: apperr.SyncFailure(nil)}
	app := newTestApp(uc)

	resp, body := postSync(t, app, `{"connectionId": "42"}`)

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if code := errorCode(t, body); code != apperr.CodeSyncFailure {
		t.Errorf("error code = %q, want %q", code, apperr.CodeSyncFailure)
	}
	errObj := body["error"].(map[string]any)
	if errObj["message"] != "Failed to sync emails" {
		t.Errorf("error message = %v, want %q", errObj["message"], "Failed to sync emails")
	}
}

func TestSyncEndpointAuthExpired(t *testing.T) {
	// The pipeline wraps an unrecovered token expiry in a sync failure, so
	// the caller sees the generic 500, not a 401 about its own credentials.
	uc := &fakeSyncUseCase{err: apperr.SyncFailure(apperr.AuthExpired("outlook", nil))}
	app := newTestApp(uc)

	resp, body := postSync(t, app, `{"connectionId": "42"}`)

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if code := errorCode(t, body); code != apperr.CodeSyncFailure {
		t.Errorf("error code = %q, want %q", code, apperr.CodeSyncFailure)
	}
	errObj := body["error"].(map[string]any)
	if errObj["message"] != "Failed to sync emails" {
		t.Errorf("error message = %v, want %q", errObj["message"], "Failed to sync emails")
	}
}
