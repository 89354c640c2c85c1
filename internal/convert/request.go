// Package convert maps between the OpenAI chat-completion schema and the
// Gemini generateContent schema, for complete payloads and streamed events.
package convert

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/vertex"
)

// ChatRequest converts an OpenAI chat completion request body into a Gemini
// generateContent request. It returns the bare (publisher-stripped) model name
// and whether the caller asked for streaming.
//
// The raw body is traversed with gjson because several OpenAI fields are
// polymorphic: content is a string or a part array, stop is a string or a
// string list.
func ChatRequest(body []byte) (model string, req *vertex.GenerateContentRequest, stream bool, err error) {
	if !gjson.ValidBytes(body) {
		return "", nil, false, core.NewConversionError("request body is not valid JSON", nil)
	}

	model = vertex.StripPublisher(gjson.GetBytes(body, "model").String())
	if model == "" {
		return "", nil, false, core.NewInvalidRequestError("model is required", nil)
	}

	messages := gjson.GetBytes(body, "messages").Array()
	if len(messages) == 0 {
		return "", nil, false, core.NewInvalidRequestError("messages must not be empty", nil)
	}

	systemInstruction, contents, err := convertMessages(messages)
	if err != nil {
		return "", nil, false, err
	}

	req = &vertex.GenerateContentRequest{
		Contents:          contents,
		SystemInstruction: systemInstruction,
		GenerationConfig:  convertGenerationConfig(body),
	}
	return model, req, gjson.GetBytes(body, "stream").Bool(), nil
}

// convertMessages collects system messages into a single system instruction
// and maps the remaining turns, assistant becoming the "model" role.
func convertMessages(messages []gjson.Result) (*vertex.Content, []vertex.Content, error) {
	var systemParts []vertex.Part
	var contents []vertex.Content

	for _, msg := range messages {
		role := msg.Get("role").String()
		if role == "" {
			role = "user"
		}
		content := msg.Get("content")

		if role == "system" {
			switch {
			case content.Type == gjson.String:
				systemParts = append(systemParts, vertex.Part{Text: content.String()})
			case content.IsArray():
				for _, item := range content.Array() {
					if item.Get("type").String() == "text" {
						systemParts = append(systemParts, vertex.Part{Text: item.Get("text").String()})
					}
				}
			}
			continue
		}

		geminiRole := "user"
		if role == "assistant" {
			geminiRole = "model"
		}
		parts, err := contentToParts(content)
		if err != nil {
			return nil, nil, err
		}
		if len(parts) > 0 {
			contents = append(contents, vertex.Content{Role: geminiRole, Parts: parts})
		}
	}

	var systemInstruction *vertex.Content
	if len(systemParts) > 0 {
		systemInstruction = &vertex.Content{Parts: systemParts}
	}
	return systemInstruction, contents, nil
}

// contentToParts maps one message's content to Gemini parts. Each part ends up
// with exactly one payload: text, inline data or a file reference.
func contentToParts(content gjson.Result) ([]vertex.Part, error) {
	if content.Type == gjson.String {
		return []vertex.Part{{Text: content.String()}}, nil
	}
	if !content.IsArray() {
		if !content.Exists() || content.Type == gjson.Null {
			return nil, nil
		}
		return []vertex.Part{{Text: content.String()}}, nil
	}

	var parts []vertex.Part
	for _, item := range content.Array() {
		kind := item.Get("type").String()
		if kind == "" {
			kind = "text"
		}
		switch kind {
		case "text":
			parts = append(parts, vertex.Part{Text: item.Get("text").String()})
		case "image_url":
			part, ok := imagePart(item)
			if ok {
				parts = append(parts, part)
			}
		default:
			return nil, core.NewConversionError(fmt.Sprintf("unrecognized content part type %q", kind), nil)
		}
	}
	return parts, nil
}

// imagePart maps an image_url part: data URIs become inline base64 blobs,
// anything else a file reference.
func imagePart(item gjson.Result) (vertex.Part, bool) {
	url := item.Get("image_url.url").String()
	if url == "" {
		url = item.Get("image_url").String()
	}
	switch {
	case strings.HasPrefix(url, "data:"):
		mime, data, _ := strings.Cut(strings.TrimPrefix(url, "data:"), ";base64,")
		return vertex.Part{InlineData: &vertex.Blob{MimeType: mime, Data: data}}, true
	case url != "":
		return vertex.Part{FileData: &vertex.FileData{MimeType: "image/jpeg", FileURI: url}}, true
	default:
		return vertex.Part{}, false
	}
}

// convertGenerationConfig maps generation parameters by name. Absent source
// fields are omitted, never defaulted.
func convertGenerationConfig(body []byte) *vertex.GenerationConfig {
	gc := &vertex.GenerationConfig{}
	set := false

	// max_completion_tokens is the newer alias and wins when both are present.
	for _, key := range []string{"max_tokens", "max_completion_tokens"} {
		if v := gjson.GetBytes(body, key); v.Exists() {
			n := int(v.Int())
			gc.MaxOutputTokens = &n
			set = true
		}
	}
	if v := gjson.GetBytes(body, "temperature"); v.Exists() {
		f := v.Float()
		gc.Temperature = &f
		set = true
	}
	if v := gjson.GetBytes(body, "top_p"); v.Exists() {
		f := v.Float()
		gc.TopP = &f
		set = true
	}
	if v := gjson.GetBytes(body, "stop"); v.Exists() {
		if v.IsArray() {
			for _, s := range v.Array() {
				gc.StopSequences = append(gc.StopSequences, s.String())
			}
		} else {
			gc.StopSequences = []string{v.String()}
		}
		set = true
	}
	if v := gjson.GetBytes(body, "n"); v.Exists() && v.Int() > 1 {
		n := int(v.Int())
		gc.CandidateCount = &n
		set = true
	}

	if !set {
		return nil
	}
	return gc
}
