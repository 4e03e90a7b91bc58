// Package api provides the HTTP client for the agent backend: execute,
// approval decisions, and image upload.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
)

// ExecuteRequest starts a new agentic workflow.
type ExecuteRequest struct {
	Request string          `json:"request"`
	Context *ExecuteContext `json:"context,omitempty"`
}

// ExecuteContext carries optional request context such as pre-uploaded
// image URLs.
type ExecuteContext struct {
	Images   []string `json:"images,omitempty"`
	SellerNo int      `json:"seller_no,omitempty"`
}

// ExecuteResponse is the backend's answer to an execute call.
type ExecuteResponse struct {
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"` // accepted, rejected
	Message  string `json:"message,omitempty"`
}

// ImageData describes one uploaded file.
type ImageData struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Bucket      string `json:"bucket"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// envelope is the backend's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the agent backend over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a backend client for the given API base URL. token, when
// non-empty, is attached as a bearer credential to every call.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Execute submits a natural-language request and returns the assigned thread.
func (c *Client) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	var resp ExecuteResponse
	if err := c.postJSON(ctx, "/agents/execute", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Approve records an APPROVED (or MODIFIED, when modifications are present)
// decision for a pending approval.
func (c *Client) Approve(ctx context.Context, approvalID string, modifications json.RawMessage, comment string) (*domain.ApprovalResponse, error) {
	decision := domain.ApprovalStatusApproved
	if len(modifications) > 0 {
		decision = domain.ApprovalStatusModified
	}
	body := map[string]interface{}{
		"decision": decision,
	}
	if len(modifications) > 0 {
		body["modifications"] = modifications
	}
	if comment != "" {
		body["comment"] = comment
	}

	var resp domain.ApprovalResponse
	if err := c.postJSON(ctx, "/approvals/"+approvalID+"/approve", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reject records a REJECTED decision for a pending approval.
func (c *Client) Reject(ctx context.Context, approvalID, comment string) (*domain.ApprovalResponse, error) {
	body := map[string]interface{}{
		"decision": domain.ApprovalStatusRejected,
	}
	if comment != "" {
		body["comment"] = comment
	}

	var resp domain.ApprovalResponse
	if err := c.postJSON(ctx, "/approvals/"+approvalID+"/reject", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadImage uploads one file and returns its stored location. The caller
// treats the returned URL as an opaque string to embed in a user message.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader, folder string) (*ImageData, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if folder != "" {
		if err := mw.WriteField("folder", folder); err != nil {
			return nil, fmt.Errorf("failed to write folder field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setCommonHeaders(req)

	var data ImageData
	if err := c.do(req, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(req)

	return c.do(req, out)
}

// do executes the request and unwraps the {success, data, error} envelope.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !env.Success {
		if env.Error != nil {
			return fmt.Errorf("backend error %s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("X-Request-ID", "req_"+uuid.New().String()[:8])
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
