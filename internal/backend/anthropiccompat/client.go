package anthropiccompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/luthien-proxy/luthien/internal/pipeline"
)

// Client implements pipeline.Backend[*Request, *StreamEvent, *Response]
// over Anthropic's native HTTP/SSE transport. Req is already Anthropic's
// native shape — the gateway adapter is responsible for whatever
// client-facing translation happens before the pipeline sees the request;
// this core never rewrites across provider formats on the hot path.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client. httpClient is caller-owned so tests can
// substitute a go-vcr-wrapped RoundTripper.
func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	return &Client{apiKey: apiKey, baseURL: baseURL, http: httpClient}
}

var _ pipeline.Backend[*Request, *StreamEvent, *Response] = (*Client)(nil)

func (c *Client) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = defaultMaxTokens
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	return httpReq, nil
}

// Complete issues a non-streaming call to /v1/messages.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	req.Stream = false
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to anthropic: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("anthropic API error (status %d): %v", httpResp.StatusCode, errBody)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}
	return &resp, nil
}

// Stream issues a streaming call and decodes Anthropic's named SSE events
// into StreamEvent values, one per line with a "data: " prefix, using a
// plain bufio.Scanner over the response body.
func (c *Client) Stream(ctx context.Context, req *Request) (<-chan pipeline.StreamItem[*StreamEvent], error) {
	req.Stream = true
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to anthropic: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("anthropic API error (status %d): %v", httpResp.StatusCode, errBody)
	}

	ch := make(chan pipeline.StreamItem[*StreamEvent])

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var event StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				select {
				case ch <- pipeline.StreamItem[*StreamEvent]{Err: fmt.Errorf("decoding anthropic stream event: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case ch <- pipeline.StreamItem[*StreamEvent]{Chunk: &event}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- pipeline.StreamItem[*StreamEvent]{Err: fmt.Errorf("reading anthropic stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
