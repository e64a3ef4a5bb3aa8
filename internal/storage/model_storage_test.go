package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haskel/bore/internal/classifier"
)

func newTestDense(t *testing.T, seed uint64) *classifier.Dense {
	t.Helper()
	opts := classifier.DefaultOptions(2)
	opts.NumUnits = 4
	opts.Seed = seed
	d, err := classifier.NewDense(opts)
	if err != nil {
		t.Fatalf("NewDense failed: %v", err)
	}
	return d
}

func TestModelStorage_SaveLoadClassifier(t *testing.T) {
	ms := NewModelStorage(NewFileStore(t.TempDir(), time.Hour, testLogger()))

	if ms.ModelExists() {
		t.Error("expected no classifier initially")
	}

	original := newTestDense(t, 1)
	if err := ms.SaveModel(original); err != nil {
		t.Fatalf("SaveModel error: %v", err)
	}
	if !ms.ModelExists() {
		t.Error("expected classifier to exist after save")
	}

	loaded := newTestDense(t, 2)
	if err := ms.LoadModel(loaded); err != nil {
		t.Fatalf("LoadModel error: %v", err)
	}

	x := []float64{0.3, 0.7}
	if got, want := loaded.Logit(x, nil), original.Logit(x, nil); got != want {
		t.Errorf("expected loaded logit %v, got %v", want, got)
	}
}

func TestModelStorage_LoadNonExistent(t *testing.T) {
	ms := NewModelStorage(NewFileStore(t.TempDir(), time.Hour, testLogger()))

	d := newTestDense(t, 1)
	x := []float64{0.5, 0.5}
	before := d.Logit(x, nil)

	if err := ms.LoadModel(d); err != nil {
		t.Errorf("expected no error loading missing classifier, got: %v", err)
	}
	if d.Logit(x, nil) != before {
		t.Error("expected weights to be untouched")
	}
}

func TestModelStorage_LoadIncompatible(t *testing.T) {
	dir := t.TempDir()
	ms := NewModelStorage(NewFileStore(dir, time.Hour, testLogger()))

	if err := os.WriteFile(filepath.Join(dir, modelFileName), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	d := newTestDense(t, 1)
	if err := ms.LoadModel(d); err != nil {
		t.Errorf("expected corrupted classifier file to be ignored, got: %v", err)
	}
}

func TestModelStorage_GetModelInfo(t *testing.T) {
	ms := NewModelStorage(NewFileStore(t.TempDir(), time.Hour, testLogger()))

	if info := ms.GetModelInfo(); info.Exists {
		t.Error("expected classifier to not exist")
	}

	if err := ms.SaveModel(newTestDense(t, 1)); err != nil {
		t.Fatalf("failed to save classifier: %v", err)
	}

	info := ms.GetModelInfo()
	if !info.Exists {
		t.Error("expected classifier to exist")
	}
	if info.Size == 0 {
		t.Error("expected non-zero size")
	}
	if info.UpdatedAt.IsZero() {
		t.Error("expected non-zero UpdatedAt")
	}
}

func TestModelStorage_DeleteModel(t *testing.T) {
	ms := NewModelStorage(NewFileStore(t.TempDir(), time.Hour, testLogger()))

	if err := ms.SaveModel(newTestDense(t, 1)); err != nil {
		t.Fatalf("failed to save classifier: %v", err)
	}
	if err := ms.DeleteModel(); err != nil {
		t.Fatalf("DeleteModel error: %v", err)
	}
	if ms.ModelExists() {
		t.Error("expected classifier to not exist after delete")
	}
	if err := ms.DeleteModel(); err != nil {
		t.Errorf("expected no error deleting missing classifier, got: %v", err)
	}
}
