package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// mockVerifier implements Verifier
type mockVerifier struct {
	failOn string
}

func (m *mockVerifier) VerifyFile(ctx context.Context, path string) (*model.Report, error) {
	time.Sleep(5 * time.Millisecond)
	if m.failOn != "" && strings.HasSuffix(path, m.failOn) {
		return nil, errors.New("verify error")
	}
	return &model.Report{TotalClaims: 1, SupportedCount: 1, SupportRate: 1}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessPaths(t *testing.T) {
	processor := NewBatchProcessor(&mockVerifier{failOn: "b.json"}, 2)

	paths := []string{"a.json", "b.json", "c.json"}
	results := processor.ProcessPaths(context.Background(), paths)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Path != paths[i] {
			t.Errorf("result %d has path %s", i, res.Path)
		}
	}
	if results[0].Error != nil || results[0].Report == nil {
		t.Errorf("expected report for a.json, got %v", results[0].Error)
	}
	if results[1].Error == nil || results[1].Report != nil {
		t.Error("expected error and nil report for b.json")
	}
}

func TestBatchProcessor_ProcessPaths_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockVerifier{}, 2)

	results := processor.ProcessPaths(context.Background(), []string{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadPathsFromFile(t *testing.T) {
	dir := t.TempDir()
	list := writeFile(t, dir, "list.txt", "a.json\n# comment\n/abs/b.json\n   \nc.json   \na.json\n")

	paths, err := ReadPathsFromFile(list)
	if err != nil {
		t.Fatalf("ReadPathsFromFile failed: %v", err)
	}

	expected := []string{filepath.Join(dir, "a.json"), "/abs/b.json", filepath.Join(dir, "c.json")}
	if len(paths) != len(expected) {
		t.Fatalf("expected %d paths, got %d: %v", len(expected), len(paths), paths)
	}
	for i, p := range paths {
		if p != expected[i] {
			t.Errorf("expected %s at index %d, got %s", expected[i], i, p)
		}
	}
}

func TestReadPathsFromFile_NonExistent(t *testing.T) {
	if _, err := ReadPathsFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestVerifyResult_GetError(t *testing.T) {
	r1 := &VerifyResult{Path: "a.json"}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("verify failed")
	r2 := &VerifyResult{Path: "a.json", Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	dir := t.TempDir()
	list := writeFile(t, dir, "list.txt", "one.json\ntwo.json\n# comment\n\nthree.json\n")

	processor := NewBatchProcessor(&mockVerifier{}, 2)

	results, err := processor.ProcessFile(context.Background(), list)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	processor := NewBatchProcessor(&mockVerifier{}, 2)

	if _, err := processor.ProcessFile(context.Background(), "no_such_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}
