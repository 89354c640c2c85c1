package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/proxy"
)

type mockBridge struct {
	chatFn     func(ctx context.Context, body []byte, query url.Values) (*proxy.Result, error)
	generateFn func(ctx context.Context, model, method string, body []byte, query url.Values) (*proxy.Result, error)
	modelsFn   func(ctx context.Context) (*core.ModelsResponse, error)
}

func (m *mockBridge) ChatCompletion(ctx context.Context, body []byte, query url.Values) (*proxy.Result, error) {
	return m.chatFn(ctx, body, query)
}

func (m *mockBridge) Generate(ctx context.Context, model, method string, body []byte, query url.Values) (*proxy.Result, error) {
	return m.generateFn(ctx, model, method, body, query)
}

func (m *mockBridge) ListModels(ctx context.Context) (*core.ModelsResponse, error) {
	return m.modelsFn(ctx)
}

func jsonResult(status int, body string) *proxy.Result {
	return &proxy.Result{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        io.NopCloser(strings.NewReader(body)),
	}
}

func TestChatCompletionEndpoint(t *testing.T) {
	var gotBody []byte
	bridge := &mockBridge{
		chatFn: func(_ context.Context, body []byte, _ url.Values) (*proxy.Result, error) {
			gotBody = body
			return jsonResult(http.StatusOK, `{"id":"chatcmpl-abc"}`), nil
		},
	}
	srv := New(bridge, &Config{AuthMode: "express"})

	for _, path := range []string{"/v1/chat/completions", "/v1beta/chat/completions"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"model":"gemini-2.5-flash"}`))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200; body: %s", path, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("%s: content type = %q", path, got)
		}
		if !strings.Contains(rec.Body.String(), "chatcmpl-abc") {
			t.Errorf("%s: unexpected body %q", path, rec.Body.String())
		}
		if string(gotBody) != `{"model":"gemini-2.5-flash"}` {
			t.Errorf("%s: bridge received body %q", path, gotBody)
		}
	}
}

func TestGenerateParamSplitting(t *testing.T) {
	tests := []struct {
		path       string
		wantModel  string
		wantMethod string
	}{
		{"/v1/models/gemini-2.5-flash:generateContent", "gemini-2.5-flash", "generateContent"},
		{"/v1/models/google/gemini-2.5-flash:streamGenerateContent", "gemini-2.5-flash", "streamGenerateContent"},
		{"/v1beta/models/gemini-2.5-pro:generateContent", "gemini-2.5-pro", "generateContent"},
	}

	for _, tt := range tests {
		var gotModel, gotMethod string
		bridge := &mockBridge{
			generateFn: func(_ context.Context, model, method string, _ []byte, _ url.Values) (*proxy.Result, error) {
				gotModel, gotMethod = model, method
				return jsonResult(http.StatusOK, `{}`), nil
			},
		}
		srv := New(bridge, nil)

		req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d; body: %s", tt.path, rec.Code, rec.Body.String())
		}
		if gotModel != tt.wantModel || gotMethod != tt.wantMethod {
			t.Errorf("%s: bridge got (%q, %q), want (%q, %q)", tt.path, gotModel, gotMethod, tt.wantModel, tt.wantMethod)
		}
	}
}

func TestGenerateRejectsMissingMethod(t *testing.T) {
	bridge := &mockBridge{
		generateFn: func(context.Context, string, string, []byte, url.Values) (*proxy.Result, error) {
			t.Fatal("bridge must not be called for a malformed model segment")
			return nil, nil
		},
	}
	srv := New(bridge, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/models/gemini-2.5-flash", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGenerateForwardsQuery(t *testing.T) {
	var gotQuery url.Values
	bridge := &mockBridge{
		generateFn: func(_ context.Context, _, _ string, _ []byte, query url.Values) (*proxy.Result, error) {
			gotQuery = query
			return jsonResult(http.StatusOK, `{}`), nil
		},
	}
	srv := New(bridge, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/models/gemini-2.5-flash:streamGenerateContent?alt=sse", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if gotQuery.Get("alt") != "sse" {
		t.Errorf("query not forwarded, got %v", gotQuery)
	}
}

func TestChatCompletionForwardsQuery(t *testing.T) {
	var gotQuery url.Values
	bridge := &mockBridge{
		chatFn: func(_ context.Context, _ []byte, query url.Values) (*proxy.Result, error) {
			gotQuery = query
			return jsonResult(http.StatusOK, `{}`), nil
		},
	}
	srv := New(bridge, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?timeout=30s", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if gotQuery.Get("timeout") != "30s" {
		t.Errorf("query not forwarded to the bridge, got %v", gotQuery)
	}
}

func TestStreamingResponseHeaders(t *testing.T) {
	bridge := &mockBridge{
		chatFn: func(context.Context, []byte, url.Values) (*proxy.Result, error) {
			return &proxy.Result{
				StatusCode:  http.StatusOK,
				ContentType: "text/event-stream",
				Body:        io.NopCloser(strings.NewReader("data: {\"id\":\"c1\"}\n\ndata: [DONE]\n\n")),
				Stream:      true,
			}, nil
		},
	}
	srv := New(bridge, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("cache control = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "data: [DONE]") {
		t.Errorf("stream body not flushed through: %q", rec.Body.String())
	}
}

func TestUpstreamErrorBodyPassthrough(t *testing.T) {
	bridge := &mockBridge{
		chatFn: func(context.Context, []byte, url.Values) (*proxy.Result, error) {
			return nil, core.NewUpstreamError(http.StatusTooManyRequests, []byte(`{"error":{"message":"quota"}}`))
		},
	}
	srv := New(bridge, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Body.String() != `{"error":{"message":"quota"}}` {
		t.Errorf("upstream body rewritten: %q", rec.Body.String())
	}
}

func TestConversionErrorResponse(t *testing.T) {
	bridge := &mockBridge{
		chatFn: func(context.Context, []byte, url.Values) (*proxy.Result, error) {
			return nil, core.NewConversionError("unsupported content part", nil)
		},
	}
	srv := New(bridge, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unreadable error body: %v", err)
	}
	if payload.Error.Type != "conversion_error" {
		t.Errorf("error type = %q", payload.Error.Type)
	}
}

func TestListModelsEndpoint(t *testing.T) {
	bridge := &mockBridge{
		modelsFn: func(context.Context) (*core.ModelsResponse, error) {
			return &core.ModelsResponse{Object: "list", Data: []core.Model{
				{ID: "google/gemini-2.5-flash", Object: "model", OwnedBy: "google"},
			}}, nil
		},
	}
	srv := New(bridge, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp core.ModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unreadable body: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "google/gemini-2.5-flash" {
		t.Errorf("unexpected listing %+v", resp)
	}
}

func TestRootReportsAuthMode(t *testing.T) {
	srv := New(&mockBridge{}, &Config{AuthMode: "service_account"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"auth_mode":"service_account"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestKeyAuth(t *testing.T) {
	bridge := &mockBridge{
		modelsFn: func(context.Context) (*core.ModelsResponse, error) {
			return &core.ModelsResponse{Object: "list"}, nil
		},
	}
	srv := New(bridge, &Config{ProxyKey: "sk-proxy"})

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"bearer token accepted", "/v1/models", "Bearer sk-proxy", http.StatusOK},
		{"query key accepted", "/v1/models?key=sk-proxy", "", http.StatusOK},
		{"wrong key rejected", "/v1/models", "Bearer wrong", http.StatusUnauthorized},
		{"missing key rejected", "/v1/models", "", http.StatusUnauthorized},
		{"health skips auth", "/health", "", http.StatusOK},
		{"root skips auth", "/", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}
