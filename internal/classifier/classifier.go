// Package classifier talks to the hosted text-generation endpoint. It has
// two call sites: JSON-constrained URL safety verdicts for the scan
// workflow, and an unrelated best-effort fun fact used purely as page
// dressing. The service does no URL analysis of its own.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"linkscout/internal/logging"
	"linkscout/internal/model"
	"linkscout/internal/webclient"
)

// ErrClassifierUnavailable is the single undifferentiated failure the
// scan workflow sees: network error, non-2xx, malformed model output and
// missing fields all collapse into it. No partial results.
var ErrClassifierUnavailable = errors.New("classification unavailable")

const (
	generatePathFormat = "/v1beta/models/%s:generateContent"

	verdictInstruction = `Return JSON: {"status": "safe"|"suspicious"|"malicious", "reason": "1-sentence wacky explanation"}`

	funFactPrompt      = "Tell me a short, wacky fact about internet history."
	funFactInstruction = "You are a wacky internet historian. Keep facts under 20 words. No quotes."

	// funFactDefault covers a 2xx response with no usable candidate text.
	funFactDefault = "The first domain name was symbolics.com."

	// funFactFallback covers any outright failure of the fun fact call.
	funFactFallback = "The internet is too wacky to explain right now."
)

// generateContent request/response wire types (only the fields this
// client touches).

type generatePart struct {
	Text string `json:"text"`
}

type generateContentBlock struct {
	Parts []generatePart `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents          []generateContentBlock `json:"contents"`
	SystemInstruction *generateContentBlock  `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig      `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContentBlock `json:"content"`
	} `json:"candidates"`
}

// Client issues generateContent calls over the shared webclient transport.
type Client struct {
	wc       webclient.WebClient
	endpoint string
	model    string
	apiKey   string
	logger   logging.Logger
}

// NewClient wires a classifier against the endpoint. model names which
// generation model handles both call sites.
func NewClient(wc webclient.WebClient, endpoint, model, apiKey string, logger logging.Logger) *Client {
	return &Client{
		wc:       wc,
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		logger:   logger.With(logging.Field{Key: "component", Value: "classifier"}),
	}
}

// Classify asks the model for a safety verdict on url. The url must be
// non-empty; identity gating is the caller's job. The returned verdict
// carries no timestamp; the caller assigns submission time.
func (c *Client) Classify(ctx context.Context, url string) (model.Verdict, error) {
	if url == "" {
		return model.Verdict{}, fmt.Errorf("%w: empty url", ErrClassifierUnavailable)
	}

	text, err := c.generate(ctx, generateRequest{
		Contents: []generateContentBlock{
			{Parts: []generatePart{{Text: "Analyze safety of: " + url}}},
		},
		SystemInstruction: &generateContentBlock{
			Parts: []generatePart{{Text: verdictInstruction}},
		},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		c.logger.Warn("classification failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return model.Verdict{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	var verdict model.Verdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		c.logger.Warn("classifier returned non-JSON verdict",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return model.Verdict{}, fmt.Errorf("%w: decode verdict: %v", ErrClassifierUnavailable, err)
	}
	if !verdict.Status.Valid() {
		return model.Verdict{}, fmt.Errorf("%w: unknown status %q", ErrClassifierUnavailable, verdict.Status)
	}
	if verdict.Reason == "" {
		return model.Verdict{}, fmt.Errorf("%w: verdict missing reason", ErrClassifierUnavailable)
	}
	return verdict, nil
}

// FunFact fetches the unrelated fun fact string. Best effort: every
// failure mode substitutes a fixed string rather than an error, and this
// call never touches the scan workflow.
func (c *Client) FunFact(ctx context.Context) string {
	text, err := c.generate(ctx, generateRequest{
		Contents: []generateContentBlock{
			{Parts: []generatePart{{Text: funFactPrompt}}},
		},
		SystemInstruction: &generateContentBlock{
			Parts: []generatePart{{Text: funFactInstruction}},
		},
	})
	if err != nil {
		c.logger.Warn("fun fact fetch failed", logging.Field{Key: "error", Value: err.Error()})
		return funFactFallback
	}
	if text == "" {
		return funFactDefault
	}
	return text
}

// generate performs one generateContent round-trip and extracts
// candidates[0].content.parts[0].text.
func (c *Client) generate(ctx context.Context, reqBody generateRequest) (string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s"+generatePathFormat+"?key=%s", c.endpoint, c.model, c.apiKey)
	resp, err := c.wc.Do(ctx, &webclient.Request{
		Method:  "POST",
		URL:     url,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    body,
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
