package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/vertex"
)

const (
	modelFetchAttempts = 3
	modelFetchBackoff  = 200 * time.Millisecond
)

// ListModels fans out one listing call per configured publisher, merges the
// results, applies the name filter and appends the configured extra models.
// A publisher that fails to list contributes nothing rather than failing the
// whole request.
func (d *Dispatcher) ListModels(ctx context.Context) (*core.ModelsResponse, error) {
	results := make([][]core.Model, len(d.opts.Publishers))

	var wg sync.WaitGroup
	for i, publisher := range d.opts.Publishers {
		wg.Add(1)
		go func(i int, publisher string) {
			defer wg.Done()
			results[i] = d.fetchPublisherModels(ctx, publisher)
		}(i, publisher)
	}
	wg.Wait()

	var models []core.Model
	for _, list := range results {
		models = append(models, list...)
	}

	if d.opts.FilterModelNames {
		filtered := models[:0]
		for _, m := range models {
			for _, prefix := range d.opts.NameFilters {
				if strings.HasPrefix(m.ID, prefix) {
					filtered = append(filtered, m)
					break
				}
			}
		}
		models = filtered
	}

	for _, id := range d.opts.ExtraModels {
		models = append(models, core.Model{
			ID:      id,
			Object:  "model",
			OwnedBy: vertex.Publisher(id),
		})
	}

	d.log.Info("model listing complete", "count", len(models))
	return &core.ModelsResponse{Object: "list", Data: models}, nil
}

// fetchPublisherModels lists one publisher, retrying transient transport
// failures. Non-success statuses are logged and treated as an empty listing.
func (d *Dispatcher) fetchPublisherModels(ctx context.Context, publisher string) []core.Model {
	endpoint := d.auth.ModelsURL(publisher)

	for attempt := 0; attempt < modelFetchAttempts; attempt++ {
		headers, err := d.auth.Headers(ctx)
		if err != nil {
			d.log.Warn("model listing auth failed", "publisher", publisher, "error", err)
			return nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			if attempt < modelFetchAttempts-1 {
				d.log.Warn("model listing retry", "publisher", publisher, "error", err)
				time.Sleep(modelFetchBackoff)
				continue
			}
			d.log.Warn("model listing failed", "publisher", publisher, "error", err)
			return nil
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close() //nolint:errcheck
		if err != nil {
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			d.log.Warn("model listing rejected", "publisher", publisher, "status", resp.StatusCode)
			return nil
		}

		var listing vertex.PublisherModelsResponse
		if err := json.Unmarshal(body, &listing); err != nil {
			d.log.Warn("model listing unreadable", "publisher", publisher, "error", err)
			return nil
		}

		var models []core.Model
		for _, m := range listing.PublisherModels {
			// Names arrive as publishers/{publisher}/models/{model}.
			parts := strings.Split(m.Name, "/")
			if len(parts) != 4 || parts[0] != "publishers" || parts[2] != "models" {
				continue
			}
			models = append(models, core.Model{
				ID:      parts[1] + "/" + parts[3],
				Object:  "model",
				OwnedBy: parts[1],
			})
		}
		return models
	}
	return nil
}
