package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haskel/bore/internal/server"
)

// Client is an HTTP client for the bore API
type Client struct {
	baseURL  string
	client   *http.Client
	user     string
	password string
}

// NewClient creates a new API client
func NewClient() *Client {
	return &Client{
		baseURL: GetServerURL(),
		client: &http.Client{
			// Suggestions train the classifier before answering.
			Timeout: 5 * time.Minute,
		},
		user:     user,
		password: password,
	}
}

// Get performs a GET request
func (c *Client) Get(path string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}

	return c.do(req)
}

// Post performs a POST request with JSON body
func (c *Client) Post(path string, body any) ([]byte, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	// Add auth if provided
	if c.user != "" && c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return data, resp.StatusCode, nil
}

// Health checks if server is running
func (c *Client) Health() error {
	_, status, err := c.Get("/health")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("server returned status %d", status)
	}
	return nil
}

// Suggest asks for a configuration. A nil budget means the server's maximum.
func (c *Client) Suggest(budget *float64) (*server.SuggestResponse, error) {
	var resp server.SuggestResponse
	if err := c.call(http.MethodPost, "/v1/suggest", server.SuggestRequest{Budget: budget}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Observe reports the outcome of an evaluation.
func (c *Client) Observe(req server.ObserveRequest) (*server.ObserveResponse, error) {
	var resp server.ObserveResponse
	if err := c.call(http.MethodPost, "/v1/observe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Record fetches the server's observation record.
func (c *Client) Record() (*server.RecordView, error) {
	var resp server.RecordView
	if err := c.call(http.MethodGet, "/v1/record", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(method, path string, body, out any) error {
	var (
		data   []byte
		status int
		err    error
	)
	if method == http.MethodGet {
		data, status, err = c.Get(path)
	} else {
		data, status, err = c.Post(path, body)
	}
	if err != nil {
		return err
	}

	if status != http.StatusOK {
		var apiErr server.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned status %d: %s", status, apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", status)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
