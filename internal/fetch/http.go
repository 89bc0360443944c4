package fetch

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/docpipe/internal/model"
	"github.com/sells-group/docpipe/internal/resilience"
)

const defaultUserAgent = "docpipe/1.0"

// HTTPConnector queries a JSON comparator endpoint. The request body carries
// the document identity and the corrected field values; the response body is
// a flat JSON object of comparator field values.
type HTTPConnector struct {
	def     TargetDef
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPConnector creates a connector for an http target definition.
// Per-request timeouts come from the caller's context, not the client.
func NewHTTPConnector(def TargetDef) *HTTPConnector {
	rps := def.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	burst := def.Burst
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &HTTPConnector{
		def: def,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *HTTPConnector) Name() string { return c.def.Name }

type comparatorRequest struct {
	DocumentID string         `json:"document_id"`
	DocType    string         `json:"doc_type"`
	Fields     map[string]any `json:"fields"`
}

// Fetch posts the corrected snapshot and decodes the comparator payload.
// 5xx/429 responses surface as transient errors so the orchestrator's retry
// policy applies; other non-2xx statuses are explicit rejections and are not
// retried.
func (c *HTTPConnector) Fetch(ctx context.Context, doc *model.Document, snapshot model.Snapshot) (map[string]model.Value, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(snapshot))
	for name, fv := range snapshot {
		fields[name] = fv.Value.Raw()
	}
	body, err := json.Marshal(comparatorRequest{
		DocumentID: doc.ID,
		DocType:    doc.DocType,
		Fields:     fields,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: %s: marshal request", c.def.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.def.URL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: %s: build request", c.def.Name)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range c.def.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, resilience.NewTransientError(
			eris.Errorf("fetch: %s: status %d", c.def.Name, resp.StatusCode),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, eris.Errorf("fetch: %s: rejected with status %d", c.def.Name, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, eris.Wrapf(err, "fetch: %s: decode response", c.def.Name)
	}

	payload := make(map[string]model.Value, len(raw))
	for name, rv := range raw {
		v, convErr := model.FromAny(rv)
		if convErr != nil {
			return nil, eris.Wrapf(convErr, "fetch: %s: field %q", c.def.Name, name)
		}
		payload[name] = v
	}
	return payload, nil
}
