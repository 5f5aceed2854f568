package openaicompat

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

// Client implements pipeline.Backend[*Request, *Chunk, *Response] over an
// OpenAI-compatible /v1/chat/completions endpoint. Req is already the
// backend's native shape; the gateway adapter is responsible for whatever
// client-facing translation happens before the pipeline sees the request.
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

var _ pipeline.Backend[*Request, *Chunk, *Response] = (*Client)(nil)

func (c *Client) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = defaultMaxTokens
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	return httpReq, nil
}

// Complete issues a non-streaming call to /v1/chat/completions.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	req.Stream = false
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to backend: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("backend API error (status %d): %v", httpResp.StatusCode, errBody)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding backend response: %w", err)
	}
	return &resp, nil
}

// Stream issues a streaming call and decodes one JSON object per
// "data: " line into Chunk values, stopping cleanly on the terminal
// "data: [DONE]" line.
func (c *Client) Stream(ctx context.Context, req *Request) (<-chan pipeline.StreamItem[*Chunk], error) {
	req.Stream = true
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to backend: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("backend API error (status %d): %v", httpResp.StatusCode, errBody)
	}

	ch := make(chan pipeline.StreamItem[*Chunk])

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var chunk Chunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				select {
				case ch <- pipeline.StreamItem[*Chunk]{Err: fmt.Errorf("decoding backend stream chunk: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case ch <- pipeline.StreamItem[*Chunk]{Chunk: &chunk}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- pipeline.StreamItem[*Chunk]{Err: fmt.Errorf("reading backend stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
