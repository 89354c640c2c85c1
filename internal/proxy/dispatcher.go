// Package proxy orchestrates single requests end to end: auth resolution,
// region routing, passthrough-versus-convert dispatch and response streaming.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/auth"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/convert"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/vertex"
)

const (
	methodGenerate       = "generateContent"
	methodStreamGenerate = "streamGenerateContent"
)

// Options carries the model-catalog settings for the /v1/models fan-out.
type Options struct {
	Publishers       []string
	FilterModelNames bool
	NameFilters      []string
	ExtraModels      []string
}

// Dispatcher drives one request through the shared outbound client. All
// dispatch state is request-scoped; the only cross-request state lives in the
// injected auth provider and http.Client.
type Dispatcher struct {
	client   *http.Client
	auth     auth.Provider
	resolver *vertex.RegionResolver
	opts     Options
	log      *slog.Logger
}

// New creates a dispatcher over the shared client and the active auth variant.
func New(client *http.Client, provider auth.Provider, resolver *vertex.RegionResolver, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:   client,
		auth:     provider,
		resolver: resolver,
		opts:     opts,
		log:      logger,
	}
}

// Result is one dispatched response. Body is consumed incrementally by the
// server layer; Stream marks SSE bodies that must be flushed per chunk.
type Result struct {
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	Stream      bool
}

// ChatCompletion handles a unified chat completion request. In passthrough
// mode the body goes to Vertex's OpenAI-compatible endpoint with only the
// model name normalized and the caller's query forwarded; otherwise it is
// converted to generateContent and the response converted back.
func (d *Dispatcher) ChatCompletion(ctx context.Context, body []byte, query url.Values) (*Result, error) {
	if d.auth.SupportsNativePassthrough() {
		return d.chatPassthrough(ctx, body, query)
	}
	return d.chatConvert(ctx, body)
}

func (d *Dispatcher) chatPassthrough(ctx context.Context, body []byte, query url.Values) (*Result, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.NewInvalidRequestError("invalid request body: "+err.Error(), err)
	}
	model, _ := raw["model"].(string)
	raw["model"] = vertex.NormalizeModel(model)
	stream, _ := raw["stream"].(bool)

	region := d.resolver.Resolve(model)
	endpoint, err := d.auth.ChatCompletionsURL(region)
	if err != nil {
		return nil, core.NewInvalidRequestError(err.Error(), err)
	}
	if q := stripProxyKey(query); len(q) > 0 {
		endpoint = appendQuery(endpoint, q.Encode())
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to re-encode request body", err)
	}

	d.log.Info("dispatching chat completion", "mode", "passthrough", "model", model, "region", region, "stream", stream)

	resp, err := d.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: contentType(resp),
		Body:        resp.Body,
		Stream:      stream && resp.StatusCode == http.StatusOK,
	}, nil
}

func (d *Dispatcher) chatConvert(ctx context.Context, body []byte) (*Result, error) {
	model, geminiReq, stream, err := convert.ChatRequest(body)
	if err != nil {
		return nil, err
	}

	method := methodGenerate
	if stream {
		method = methodStreamGenerate
	}
	region := d.resolver.Resolve(model)
	endpoint := d.auth.GenerateURL(region, model, method)
	if stream {
		endpoint = appendQuery(endpoint, "alt=sse")
	}

	payload, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, core.NewConversionError("failed to encode converted request", err)
	}

	d.log.Info("dispatching chat completion", "mode", "convert", "model", model, "region", region, "stream", stream)

	resp, err := d.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}

	// Non-success upstream bodies are preserved verbatim; the caller sees the
	// upstream's own error semantics.
	if resp.StatusCode != http.StatusOK {
		errBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close() //nolint:errcheck
		if readErr != nil {
			return nil, core.NewTransportError("failed to read upstream response", readErr)
		}
		return nil, core.NewUpstreamError(resp.StatusCode, errBody)
	}

	if stream {
		return &Result{
			StatusCode:  http.StatusOK,
			ContentType: "text/event-stream",
			Body:        convert.NewStreamConverter(resp.Body, model),
			Stream:      true,
		}, nil
	}

	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewTransportError("failed to read upstream response", err)
	}
	var geminiResp vertex.GenerateContentResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, core.NewConversionError("failed to decode upstream response", err)
	}
	out, err := json.Marshal(convert.ChatResponse(&geminiResp, model))
	if err != nil {
		return nil, core.NewConversionError("failed to encode converted response", err)
	}
	return &Result{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        io.NopCloser(bytes.NewReader(out)),
	}, nil
}

// Generate handles the native generateContent/streamGenerateContent endpoints.
// The body is forwarded byte for byte; only auth material and the target URL
// are rewritten.
func (d *Dispatcher) Generate(ctx context.Context, model, method string, body []byte, query url.Values) (*Result, error) {
	if !d.auth.SupportsNativePassthrough() {
		return nil, core.NewNotFoundError("native endpoints are not available in express mode")
	}
	if method != methodGenerate && method != methodStreamGenerate {
		return nil, core.NewNotFoundError("unknown model method: " + method)
	}

	bare := vertex.StripPublisher(model)
	region := d.resolver.Resolve(bare)
	endpoint := d.auth.GenerateURL(region, bare, method)
	if len(query) > 0 {
		endpoint = appendQuery(endpoint, query.Encode())
	}

	stream := method == methodStreamGenerate
	d.log.Info("dispatching native generate", "model", bare, "method", method, "region", region)

	resp, err := d.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: contentType(resp),
		Body:        resp.Body,
		Stream:      stream && resp.StatusCode == http.StatusOK,
	}, nil
}

// do issues one outbound call with auth headers attached. The request context
// carries client cancellation into the connection pool, so an abandoned
// stream releases its connection promptly.
func (d *Dispatcher) do(ctx context.Context, httpMethod, endpoint string, body []byte) (*http.Response, error) {
	headers, err := d.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, core.NewTransportError("upstream request failed: "+err.Error(), err)
	}
	return resp, nil
}

func contentType(resp *http.Response) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/json"
}

// stripProxyKey removes the bridge's own key parameter from a forwarded
// query. The proxy credential never travels upstream.
func stripProxyKey(query url.Values) url.Values {
	if _, ok := query["key"]; !ok {
		return query
	}
	out := make(url.Values, len(query))
	for k, v := range query {
		if k != "key" {
			out[k] = v
		}
	}
	return out
}

func appendQuery(endpoint, query string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + query
}
