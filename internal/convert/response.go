package convert

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/vertex"
)

// newChatID mints an OpenAI-style completion ID.
func newChatID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ChatResponse converts a complete generateContent response into an OpenAI
// chat completion response.
func ChatResponse(resp *vertex.GenerateContentResponse, model string) *core.ChatResponse {
	choices := make([]core.Choice, 0, len(resp.Candidates))
	for i, candidate := range resp.Candidates {
		choices = append(choices, core.Choice{
			Index: i,
			Message: core.Message{
				Role:    "assistant",
				Content: candidateText(candidate),
			},
			FinishReason: MapFinishReason(candidate.FinishReason),
		})
	}

	out := &core.ChatResponse{
		ID:      newChatID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: choices,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = core.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return out
}

// candidateText concatenates a candidate's text parts.
func candidateText(c vertex.Candidate) string {
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// MapFinishReason maps Gemini finish reasons onto the OpenAI taxonomy.
// Unrecognized values pass through unchanged so unknown upstream states are
// never silently coerced to a clean stop.
func MapFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "STOP", "FINISH_REASON_STOP":
		return "stop"
	case "MAX_TOKENS", "FINISH_REASON_MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "SPII", "BLOCKLIST", "FINISH_REASON_SAFETY":
		return "content_filter"
	default:
		return reason
	}
}

// finishReasonPtr is the streamed-chunk variant: absent reasons stay null on
// the wire.
func finishReasonPtr(reason string) *string {
	if reason == "" {
		return nil
	}
	mapped := MapFinishReason(reason)
	return &mapped
}
