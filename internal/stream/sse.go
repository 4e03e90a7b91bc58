package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSETransport streams frames over Server-Sent Events from
// GET {base}/api/v1/agents/stream/{thread_id}.
type SSETransport struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewSSETransport creates an SSE transport for the given stream base URL.
// token, when non-empty, is attached as a bearer credential.
func NewSSETransport(baseURL, token string) *SSETransport {
	return &SSETransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 0, // streaming connection, no overall deadline
		},
	}
}

// Stream connects and delivers each SSE event's data block as one frame.
func (t *SSETransport) Stream(ctx context.Context, threadID string, h FrameHandler) error {
	url := fmt.Sprintf("%s/api/v1/agents/stream/%s", t.baseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("stream returned status %d: %s", resp.StatusCode, string(body))
	}

	h.Opened()
	return parseSSE(resp.Body, h)
}

// parseSSE reads an SSE stream and delivers each event's data as a frame.
// Comment lines and non-data fields are skipped; multi-line data blocks are
// joined with newlines per the SSE format.
func parseSSE(reader io.Reader, h FrameHandler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	flush := func() {
		if data.Len() > 0 {
			h.Frame([]byte(data.String()))
			data.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(chunk)
		}
		// event:/id:/retry: fields are ignored; the payload itself carries
		// the discriminant in both backend dialects.
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}
