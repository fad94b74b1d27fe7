package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/preview"
)

type echoRenderer struct{}

func (echoRenderer) Preview(ctx context.Context, code string) ([]byte, string, error) {
	if strings.Contains(code, "(:") {
		return nil, "", errors.NewValidation("Invalid Python Syntax", 400)
	}
	return []byte("png:" + code), "image/png", nil
}

func TestRun_RendersOnChange(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	if err := os.WriteFile(src, []byte("x = 1"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctrl := preview.NewController(preview.Config{Renderer: echoRenderer{}, QuietPeriod: 10 * time.Millisecond})
	defer ctrl.Close()

	images := make(chan string, 8)
	failures := make(chan string, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, ctrl, Options{
			Source:  src,
			OnImage: func(data []byte) error { images <- string(data); return nil },
			OnError: func(msg string) { failures <- msg },
		})
	}()

	expect := func(ch chan string, want string) {
		t.Helper()
		select {
		case got := <-ch:
			if got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	expect(images, "png:x = 1")

	if err := os.WriteFile(src, []byte("def f(:"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	expect(failures, "Invalid Python Syntax")

	if err := os.WriteFile(src, []byte("x = 2"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	expect(images, "png:x = 2")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_MissingDirectory(t *testing.T) {
	ctrl := preview.NewController(preview.Config{Renderer: echoRenderer{}})
	defer ctrl.Close()

	err := Run(context.Background(), ctrl, Options{Source: filepath.Join(t.TempDir(), "nope", "app.py")})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
