package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stackscan/internal/blob"
)

// ErrAIEndpointMissing is returned when a provider has no URL configured.
var ErrAIEndpointMissing = errors.New("ai endpoint is not configured")

const (
	maxAIResponseBytes  = 4 << 20
	maxAILogDetailRunes = 1024
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type aiErrorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// aiEndpointClient posts JSON to a hosted AI function and decodes its JSON reply.
type aiEndpointClient struct {
	http     httpDoer
	endpoint string
	apiKey   string
	label    string
}

func newAIEndpointClient(label, endpoint, apiKey string) *aiEndpointClient {
	return &aiEndpointClient{
		http:     &http.Client{Timeout: 180 * time.Second},
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		label:    label,
	}
}

func (c *aiEndpointClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: 180 * time.Second}
		return
	}
	c.http = client
}

func (c *aiEndpointClient) post(ctx context.Context, payload, out any) error {
	if c.endpoint == "" {
		return fmt.Errorf("%s: %w", c.label, ErrAIEndpointMissing)
	}

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.label, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", c.label, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stackscan/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", c.label, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAIResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", c.label, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s returned error: %s", c.label, errorMessage(resp, respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.label, err)
	}
	return nil
}

func errorMessage(resp *http.Response, body []byte) string {
	var parsed aiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		var text string
		if len(parsed.Error) > 0 && json.Unmarshal(parsed.Error, &text) == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if len(parsed.Error) > 0 && json.Unmarshal(parsed.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		if strings.TrimSpace(parsed.Message) != "" {
			return strings.TrimSpace(parsed.Message)
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return truncateRunes(msg, 300)
	}
	return resp.Status
}

func truncateRunes(input string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	return string(runes[:limit])
}

// aiExchange tags a logged AI call with what it is about: a photo digest for
// recognition, a product id for enrichment.
type aiExchange struct {
	provider string
	kind     string
	subject  string
}

func photoExchange(provider string, front []byte) aiExchange {
	subject := "photo=none"
	if len(front) > 0 {
		subject = "photo=" + blob.Digest(front)[:12]
	}
	return aiExchange{provider: provider, kind: "recognition", subject: subject}
}

func productExchange(provider, productID string) aiExchange {
	return aiExchange{provider: provider, kind: "enrichment", subject: "product=" + productID}
}

func (x aiExchange) log(phase, detail string) {
	log.Print(x.format(phase, detail))
}

func (x aiExchange) format(phase, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = "<empty>"
	} else if n := utf8.RuneCountInString(detail); n > maxAILogDetailRunes {
		detail = fmt.Sprintf("%s... (%d runes)", truncateRunes(detail, maxAILogDetailRunes), n)
	}
	return fmt.Sprintf("%s %s %s %s: %s", x.provider, x.kind, phase, x.subject, detail)
}
