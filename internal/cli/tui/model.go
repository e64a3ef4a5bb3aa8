package tui

import (
	"time"

	"github.com/haskel/bore/internal/server"
)

// Config holds TUI configuration
type Config struct {
	ServerURL       string
	RefreshInterval time.Duration
	User            string
	Password        string
	// MinRungSize is the number of observations a rung needs before the
	// classifier is trained on it.
	MinRungSize int
}

// Model represents the TUI state
type Model struct {
	config Config

	// Data from API
	record  *server.RecordView
	pending []server.PendingJob

	// UI state
	width       int
	height      int
	loading     bool
	err         error
	lastUpdated time.Time

	// Observation table scroll position
	tableOffset int
}

// NewModel creates a new TUI model
func NewModel(cfg Config) Model {
	return Model{
		config:  cfg,
		loading: true,
	}
}
