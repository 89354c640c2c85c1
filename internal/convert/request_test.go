package convert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
)

func TestChatRequestBasic(t *testing.T) {
	body := []byte(`{
		"model": "google/gemini-2.5-flash",
		"messages": [
			{"role": "system", "content": "Be terse."},
			{"role": "user", "content": "Hello"},
			{"role": "assistant", "content": "Hi there"},
			{"role": "user", "content": "Bye"}
		],
		"temperature": 0.7,
		"top_p": 0.9,
		"max_tokens": 256,
		"stop": ["END"],
		"stream": true
	}`)

	model, req, stream, err := ChatRequest(body)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", model)
	assert.True(t, stream)

	require.NotNil(t, req.SystemInstruction)
	require.Len(t, req.SystemInstruction.Parts, 1)
	assert.Equal(t, "Be terse.", req.SystemInstruction.Parts[0].Text)

	require.Len(t, req.Contents, 3)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "Hello", req.Contents[0].Parts[0].Text)
	assert.Equal(t, "model", req.Contents[1].Role)
	assert.Equal(t, "Hi there", req.Contents[1].Parts[0].Text)
	assert.Equal(t, "user", req.Contents[2].Role)

	gc := req.GenerationConfig
	require.NotNil(t, gc)
	require.NotNil(t, gc.Temperature)
	assert.Equal(t, 0.7, *gc.Temperature)
	require.NotNil(t, gc.TopP)
	assert.Equal(t, 0.9, *gc.TopP)
	require.NotNil(t, gc.MaxOutputTokens)
	assert.Equal(t, 256, *gc.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, gc.StopSequences)
	assert.Nil(t, gc.CandidateCount)
}

func TestChatRequestAbsentParamsOmitted(t *testing.T) {
	body := []byte(`{"model": "gemini-2.5-flash", "messages": [{"role": "user", "content": "Hi"}]}`)

	model, req, stream, err := ChatRequest(body)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", model)
	assert.False(t, stream)
	assert.Nil(t, req.GenerationConfig, "absent parameters must be omitted, never defaulted")
	assert.Nil(t, req.SystemInstruction)
}

func TestChatRequestMaxTokenAliases(t *testing.T) {
	body := []byte(`{
		"model": "gemini-2.5-flash",
		"messages": [{"role": "user", "content": "Hi"}],
		"max_tokens": 100,
		"max_completion_tokens": 200
	}`)

	_, req, _, err := ChatRequest(body)
	require.NoError(t, err)
	require.NotNil(t, req.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, 200, *req.GenerationConfig.MaxOutputTokens, "max_completion_tokens wins over max_tokens")
}

func TestChatRequestStringStop(t *testing.T) {
	body := []byte(`{
		"model": "gemini-2.5-flash",
		"messages": [{"role": "user", "content": "Hi"}],
		"stop": "DONE"
	}`)

	_, req, _, err := ChatRequest(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"DONE"}, req.GenerationConfig.StopSequences)
}

func TestChatRequestCandidateCount(t *testing.T) {
	body := []byte(`{
		"model": "gemini-2.5-flash",
		"messages": [{"role": "user", "content": "Hi"}],
		"n": 3
	}`)

	_, req, _, err := ChatRequest(body)
	require.NoError(t, err)
	require.NotNil(t, req.GenerationConfig.CandidateCount)
	assert.Equal(t, 3, *req.GenerationConfig.CandidateCount)

	// n=1 is the implicit default and maps to nothing.
	body = []byte(`{"model": "gemini-2.5-flash", "messages": [{"role": "user", "content": "Hi"}], "n": 1}`)
	_, req, _, err = ChatRequest(body)
	require.NoError(t, err)
	assert.Nil(t, req.GenerationConfig)
}

func TestChatRequestContentKinds(t *testing.T) {
	body := []byte(`{
		"model": "gemini-2.5-flash",
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "What is this?"},
			{"type": "image_url", "image_url": {"url": "data:image/png;base64,aGVsbG8="}},
			{"type": "image_url", "image_url": {"url": "https://example.com/cat.jpg"}}
		]}]
	}`)

	_, req, _, err := ChatRequest(body)
	require.NoError(t, err)
	require.Len(t, req.Contents, 1)
	parts := req.Contents[0].Parts
	require.Len(t, parts, 3)

	// Exactly one payload field per part.
	for i, part := range parts {
		populated := 0
		if part.Text != "" {
			populated++
		}
		if part.InlineData != nil {
			populated++
		}
		if part.FileData != nil {
			populated++
		}
		assert.Equal(t, 1, populated, "part %d must carry exactly one payload", i)
	}

	assert.Equal(t, "What is this?", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
	assert.Equal(t, "aGVsbG8=", parts[1].InlineData.Data)
	require.NotNil(t, parts[2].FileData)
	assert.Equal(t, "https://example.com/cat.jpg", parts[2].FileData.FileURI)
}

func TestChatRequestUnknownPartKind(t *testing.T) {
	body := []byte(`{
		"model": "gemini-2.5-flash",
		"messages": [{"role": "user", "content": [{"type": "video_url", "video_url": "https://example.com/v.mp4"}]}]
	}`)

	_, _, _, err := ChatRequest(body)
	var bridgeErr *core.BridgeError
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, core.ErrorTypeConversion, bridgeErr.Type)
}

func TestChatRequestSystemPartsCollected(t *testing.T) {
	body := []byte(`{
		"model": "gemini-2.5-flash",
		"messages": [
			{"role": "system", "content": "First."},
			{"role": "user", "content": "Hi"},
			{"role": "system", "content": [{"type": "text", "text": "Second."}]}
		]
	}`)

	_, req, _, err := ChatRequest(body)
	require.NoError(t, err)
	require.NotNil(t, req.SystemInstruction)
	require.Len(t, req.SystemInstruction.Parts, 2)
	assert.Equal(t, "First.", req.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "Second.", req.SystemInstruction.Parts[1].Text)
	require.Len(t, req.Contents, 1)
}

func TestChatRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing model", `{"messages": [{"role": "user", "content": "Hi"}]}`},
		{"empty messages", `{"model": "gemini-2.5-flash", "messages": []}`},
		{"invalid json", `{"model": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := ChatRequest([]byte(tc.body))
			var bridgeErr *core.BridgeError
			if !errors.As(err, &bridgeErr) {
				t.Fatalf("expected a BridgeError, got %v", err)
			}
		})
	}
}
