package convert

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/vertex"
)

// streamConverter wraps a Gemini SSE stream and re-frames it as an OpenAI
// chat.completion.chunk SSE stream. Events are converted one at a time as
// they arrive; nothing is buffered beyond the event currently being decoded.
type streamConverter struct {
	reader  *bufio.Reader
	body    io.ReadCloser
	model   string
	chatID  string
	created int64
	started bool
	buffer  []byte
	closed  bool
}

// NewStreamConverter returns a reader producing the converted stream.
// The caller must close it; closing releases the upstream body.
func NewStreamConverter(body io.ReadCloser, model string) io.ReadCloser {
	return &streamConverter{
		reader:  bufio.NewReader(body),
		body:    body,
		model:   model,
		chatID:  newChatID(),
		created: time.Now().Unix(),
		buffer:  make([]byte, 0, 1024),
	}
}

func (sc *streamConverter) Read(p []byte) (n int, err error) {
	// Drain previously converted data first. This runs before the closed
	// check so a short destination buffer never strands the stream tail.
	if len(sc.buffer) > 0 {
		n = copy(p, sc.buffer)
		sc.buffer = sc.buffer[n:]
		return n, nil
	}

	if sc.closed {
		return 0, io.EOF
	}

	for {
		line, err := sc.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				doneMsg := "data: [DONE]\n\n"
				n = copy(p, doneMsg)
				if n < len(doneMsg) {
					sc.buffer = append(sc.buffer, []byte(doneMsg)[n:]...)
				}
				sc.closed = true
				_ = sc.body.Close() //nolint:errcheck
				return n, nil
			}
			return 0, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))

		var event vertex.GenerateContentResponse
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		chunk := sc.convertEvent(&event)
		if len(chunk) == 0 {
			continue
		}

		sc.buffer = append(sc.buffer, chunk...)
		n = copy(p, sc.buffer)
		sc.buffer = sc.buffer[n:]
		return n, nil
	}
}

func (sc *streamConverter) Close() error {
	sc.closed = true
	return sc.body.Close()
}

// convertEvent maps one upstream event to its OpenAI SSE frame(s). The first
// frame carries the assistant role; usage totals are attached only to the
// frame carrying the finish reason.
func (sc *streamConverter) convertEvent(event *vertex.GenerateContentResponse) []byte {
	var out []byte
	for _, candidate := range event.Candidates {
		text := candidateText(candidate)

		var delta core.Delta
		if !sc.started {
			delta.Role = "assistant"
			sc.started = true
		}
		delta.Content = text

		chunk := core.ChatCompletionChunk{
			ID:      sc.chatID,
			Object:  "chat.completion.chunk",
			Created: sc.created,
			Model:   sc.model,
			Choices: []core.ChunkChoice{
				{
					Index:        candidate.Index,
					Delta:        delta,
					FinishReason: finishReasonPtr(candidate.FinishReason),
				},
			},
		}

		if event.UsageMetadata != nil && candidate.FinishReason != "" {
			chunk.Usage = &core.Usage{
				PromptTokens:     event.UsageMetadata.PromptTokenCount,
				CompletionTokens: event.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      event.UsageMetadata.TotalTokenCount,
			}
		}

		jsonData, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		out = append(out, []byte(fmt.Sprintf("data: %s\n\n", jsonData))...)
	}
	return out
}
