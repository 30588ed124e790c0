package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store"
	"github.com/tendant/wirekit/internal/store/storetest"
)

func setupTestStore(t *testing.T) (*Store, string) {
	dir, err := os.MkdirTemp("", "wirekit-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s, dir
}

func TestContract(t *testing.T) {
	s, _ := setupTestStore(t)
	storetest.Run(t, s.Factory())
}

func TestNewStoreCreatesDir(t *testing.T) {
	parent, err := os.MkdirTemp("", "wirekit-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(parent)

	dataDir := filepath.Join(parent, "nested", "data")
	if _, err := NewStore(dataDir); err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if info, err := os.Stat(dataDir); err != nil || !info.IsDir() {
		t.Errorf("Expected data dir to be created, got %v", err)
	}
}

func TestLayout(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	svc, err := s.Service(resource.New(resource.Namespace("app"), "core-users"), "files")
	if err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if err := svc.Write(ctx, "secret", []byte(`"x"`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := filepath.Join(dir, "app", "core-users", "files", "secret")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("Expected file at %s: %v", want, err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain.json", "plain.json"},
		{"~/home", "-/home"},
		{"../../etc/passwd", "././etc/passwd"},
		{"a...b", "a.b"},
		{"byUsername/al~ice.json", "byUsername/al-ice.json"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sanitize(tt.in); got != tt.want {
				t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTraversalStaysInside(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	svc, err := s.Service(resource.Namespace("app"), "files")
	if err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if err := svc.Write(ctx, "../../escape", []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape")); err == nil {
		t.Error("Write escaped the data directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "app", "files", "escape")); err != nil {
		t.Errorf("Expected sanitized file inside resource dir: %v", err)
	}
}

func TestDotResourceIDsStaySeparate(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{".", ".."} {
		t.Run(id, func(t *testing.T) {
			dotted, err := s.Service(resource.New(resource.Namespace("app"), id), "files")
			if err != nil {
				t.Fatalf("Service failed: %v", err)
			}
			if err := dotted.Write(ctx, "k", []byte("from-dotted")); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			plain, err := s.Service(resource.Namespace("app"), "files")
			if err != nil {
				t.Fatalf("Service failed: %v", err)
			}
			if _, err := plain.Read(ctx, "k"); !store.IsNotFound(err) {
				t.Errorf("Expected app/files to be separate from app/%s/files, got %v", id, err)
			}
		})
	}
}

func TestCanonicalName(t *testing.T) {
	s, _ := setupTestStore(t)

	svc, err := s.Service(resource.Namespace("app"), "files")
	if err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	cn := svc.(store.CanonicalNamer)

	if cn.CanonicalName("a~b") != cn.CanonicalName("a-b") {
		t.Error("Expected a~b and a-b to share a canonical name")
	}
	if cn.CanonicalName("a") == cn.CanonicalName("b") {
		t.Error("Expected distinct names to stay distinct")
	}

	other, err := s.Service(resource.Namespace("app"), "other")
	if err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if other.(store.CanonicalNamer).CanonicalName("a") == cn.CanonicalName("a") {
		t.Error("Expected canonical names to include the resource")
	}
}
