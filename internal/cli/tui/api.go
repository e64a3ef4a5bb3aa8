package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/haskel/bore/internal/server"
)

// Messages for tea.Cmd
type recordMsg struct {
	data *server.RecordView
	err  error
}

type pendingMsg struct {
	data []server.PendingJob
	err  error
}

type tickMsg time.Time

// API client for TUI
type apiClient struct {
	baseURL  string
	client   *http.Client
	user     string
	password string
}

func newAPIClient(cfg Config) *apiClient {
	return &apiClient{
		baseURL: cfg.ServerURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		user:     cfg.User,
		password: cfg.Password,
	}
}

func (c *apiClient) get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	if c.user != "" && c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// fetchRecord fetches the observation record as tea.Cmd
func fetchRecord(cfg Config) tea.Cmd {
	return func() tea.Msg {
		data, err := newAPIClient(cfg).get("/v1/record")
		if err != nil {
			return recordMsg{err: err}
		}

		var view server.RecordView
		if err := json.Unmarshal(data, &view); err != nil {
			return recordMsg{err: fmt.Errorf("failed to parse record: %w", err)}
		}

		return recordMsg{data: &view}
	}
}

// fetchPending fetches outstanding suggestions as tea.Cmd
func fetchPending(cfg Config) tea.Cmd {
	return func() tea.Msg {
		data, err := newAPIClient(cfg).get("/v1/pending")
		if err != nil {
			return pendingMsg{err: err}
		}

		var jobs []server.PendingJob
		if err := json.Unmarshal(data, &jobs); err != nil {
			return pendingMsg{err: fmt.Errorf("failed to parse pending jobs: %w", err)}
		}

		return pendingMsg{data: jobs}
	}
}

// tick creates a periodic tick command
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
