package tui

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/haskel/bore/internal/server"
	"github.com/haskel/bore/internal/space"
)

func lossPtr(v float64) *float64 {
	return &v
}

func testRecord() *server.RecordView {
	obs := []server.ObservationView{
		{Config: space.Config{"x": 0.1}, Budget: 1, Loss: lossPtr(2)},
		{Config: space.Config{"x": 0.4}, Budget: 1, Loss: lossPtr(0.5)},
		{Config: space.Config{"x": 0.9}, Budget: 3, Loss: nil},
		{Config: space.Config{"x": 0.4}, Budget: 3, Loss: lossPtr(0.25)},
	}
	return &server.RecordView{
		Kind:         "multi_fidelity",
		Size:         len(obs),
		Best:         &obs[3],
		Observations: obs,
		Rungs: []server.RungView{
			{Rung: 0, Budget: 1, Size: 2, Threshold: lossPtr(0.5), MeanLoss: lossPtr(1.25), BestLoss: lossPtr(0.5)},
			{Rung: 1, Budget: 3, Size: 2, BestLoss: lossPtr(0.25)},
		},
	}
}

func sized(t *testing.T) Model {
	t.Helper()
	m := NewModel(Config{ServerURL: "http://localhost:8080", RefreshInterval: time.Second, MinRungSize: 3})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func TestModel_View(t *testing.T) {
	m := sized(t)

	if !strings.Contains(m.View(), "BORE DASHBOARD") {
		t.Error("expected title before data arrives")
	}

	updated, _ := m.Update(recordMsg{data: testRecord()})
	m = updated.(Model)
	updated, _ = m.Update(pendingMsg{data: []server.PendingJob{{JobID: "a", Budget: 9}}})
	m = updated.(Model)

	if m.loading {
		t.Error("expected loading to clear after the record arrives")
	}

	view := m.View()
	for _, want := range []string{"Rungs", "Incumbent (budget 3)", "x=0.4", "4 (1 failed)", "0.2500"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestModel_ErrorKeepsData(t *testing.T) {
	m := sized(t)

	updated, _ := m.Update(recordMsg{data: testRecord()})
	m = updated.(Model)
	updated, _ = m.Update(recordMsg{err: errors.New("connection refused")})
	m = updated.(Model)

	view := m.View()
	if !strings.Contains(view, "connection refused") {
		t.Error("expected error in view")
	}
	if !strings.Contains(view, "Incumbent") {
		t.Error("expected previous record to stay visible")
	}

	updated, _ = m.Update(pendingMsg{err: errors.New("other")})
	if got := updated.(Model).err.Error(); got != "connection refused" {
		t.Errorf("expected record error to win, got %q", got)
	}
}

func TestModel_Keys(t *testing.T) {
	m := sized(t)
	updated, _ := m.Update(recordMsg{data: testRecord()})
	m = updated.(Model)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	if m.tableOffset != 1 {
		t.Errorf("expected offset 1, got %d", m.tableOffset)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	updated, _ = updated.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := updated.(Model).tableOffset; got != 0 {
		t.Errorf("expected offset to stop at 0, got %d", got)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestFetchRecord(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if r.URL.Path != "/v1/record" || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(testRecord())
	}))
	defer ts.Close()

	msg := fetchRecord(Config{ServerURL: ts.URL, User: "admin", Password: "secret"})()
	rec, ok := msg.(recordMsg)
	if !ok {
		t.Fatalf("expected recordMsg, got %T", msg)
	}
	if rec.err != nil {
		t.Fatalf("unexpected error: %v", rec.err)
	}
	if rec.data.Size != 4 || len(rec.data.Rungs) != 2 {
		t.Errorf("unexpected record %+v", rec.data)
	}

	msg = fetchPending(Config{ServerURL: ts.URL})()
	if p := msg.(pendingMsg); p.err == nil {
		t.Error("expected error for unauthenticated request")
	}
}

func TestFormatLoss(t *testing.T) {
	tests := []struct {
		in   *float64
		want string
	}{
		{nil, "-"},
		{lossPtr(0.25), "0.2500"},
		{lossPtr(0), "0.0000"},
		{lossPtr(12345), "1.234e+04"},
		{lossPtr(0.0001), "1.000e-04"},
	}
	for _, tt := range tests {
		if got := formatLoss(tt.in); got != tt.want {
			t.Errorf("formatLoss(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
