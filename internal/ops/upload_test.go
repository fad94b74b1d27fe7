package ops

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/flowgen/internal/blob"
	"github.com/hpungsan/flowgen/internal/config"
	"github.com/hpungsan/flowgen/internal/db"
	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/gallery"
)

// fakeService returns canned archives or errors and records submissions.
type fakeService struct {
	mu      sync.Mutex
	archive []byte
	err     error
	names   []string
	sources []string
	// gate, when set, blocks Upload until closed.
	gate chan struct{}
}

func (s *fakeService) Upload(ctx context.Context, filename string, src io.Reader) ([]byte, error) {
	body, _ := io.ReadAll(src)
	s.mu.Lock()
	s.names = append(s.names, filename)
	s.sources = append(s.sources, string(body))
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return s.archive, s.err
}

func buildArchive(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		w.Write([]byte("png:" + name))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func newTestEnv(t *testing.T, svc Service) (*Env, *blob.Store) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := blob.NewStore()
	return &Env{
		DB:      database,
		Config:  config.DefaultConfig(),
		Service: svc,
		Gallery: gallery.NewManager(store),
	}, store
}

func TestUpload_ReplacesGallery(t *testing.T) {
	svc := &fakeService{archive: buildArchive(t,
		"Global.png", "UserManager/login.png", "UserManager/logout.png", "README.txt")}
	env, store := newTestEnv(t, svc)

	out, err := Upload(context.Background(), env, UploadInput{
		Filename: "/src/project/app.py",
		Source:   strings.NewReader("def login(): pass\n"),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if svc.names[0] != "app.py" || svc.sources[0] != "def login(): pass\n" {
		t.Errorf("service got %q %q", svc.names[0], svc.sources[0])
	}
	if out.ImageCount != 3 || out.GroupCount != 2 || out.Selected != "ungrouped" {
		t.Errorf("output = %+v", out)
	}
	if len(out.Groups) != 2 || out.Groups[1].Key != "UserManager" || out.Groups[1].Images != 2 {
		t.Errorf("groups = %+v", out.Groups)
	}
	if store.Live() != 3 {
		t.Errorf("live = %d, want 3", store.Live())
	}

	stored, err := db.GetUpload(env.DB, out.ID)
	if err != nil {
		t.Fatalf("GetUpload failed: %v", err)
	}
	if !bytes.Equal(stored.Archive, svc.archive) {
		t.Error("stored archive differs from received bytes")
	}
	if stored.ImageCount != 3 || stored.GroupCount != 2 {
		t.Errorf("stored counts = %d/%d", stored.ImageCount, stored.GroupCount)
	}
}

func TestUpload_ServiceErrorLeavesGallery(t *testing.T) {
	svc := &fakeService{archive: buildArchive(t, "A/1.png")}
	env, store := newTestEnv(t, svc)
	if _, err := Upload(context.Background(), env, UploadInput{Filename: "a.py", Source: strings.NewReader("x")}); err != nil {
		t.Fatalf("first Upload failed: %v", err)
	}

	svc.err = errors.NewValidation("Invalid Python Syntax", 400)
	_, err := Upload(context.Background(), env, UploadInput{Filename: "b.py", Source: strings.NewReader("def (")})
	fe, ok := errors.As(err)
	if !ok || fe.Message != "Invalid Python Syntax" {
		t.Fatalf("err = %v", err)
	}

	snap := env.Gallery.Snapshot()
	if snap.Selected != "A" || snap.ImageCount != 1 || store.Live() != 1 {
		t.Errorf("gallery changed after rejected upload: %+v", snap)
	}
	list, _ := List(env.DB, ListInput{})
	if list.Pagination.Total != 1 {
		t.Errorf("history total = %d, want 1", list.Pagination.Total)
	}
}

func TestUpload_CorruptArchiveClearsGallery(t *testing.T) {
	svc := &fakeService{archive: buildArchive(t, "A/1.png")}
	env, store := newTestEnv(t, svc)
	if _, err := Upload(context.Background(), env, UploadInput{Filename: "a.py", Source: strings.NewReader("x")}); err != nil {
		t.Fatalf("first Upload failed: %v", err)
	}

	svc.archive = []byte("<html>not a zip</html>")
	_, err := Upload(context.Background(), env, UploadInput{Filename: "b.py", Source: strings.NewReader("y")})
	if !errors.Is(err, errors.ErrArchive) {
		t.Fatalf("err = %v, want ARCHIVE", err)
	}
	if snap := env.Gallery.Snapshot(); snap.GroupCount != 0 {
		t.Errorf("gallery not cleared: %+v", snap)
	}
	if store.Live() != 0 {
		t.Errorf("live = %d, want 0", store.Live())
	}

	list, _ := List(env.DB, ListInput{})
	if list.Pagination.Total != 2 {
		t.Errorf("history total = %d, want corrupt archive recorded too", list.Pagination.Total)
	}
}

func TestUpload_SupersededResultIgnored(t *testing.T) {
	slow := &fakeService{archive: buildArchive(t, "Slow/a.png", "Slow/b.png"), gate: make(chan struct{})}
	env, store := newTestEnv(t, slow)

	done := make(chan *UploadOutput, 1)
	go func() {
		out, err := Upload(context.Background(), env, UploadInput{Filename: "slow.py", Source: strings.NewReader("a")})
		if err != nil {
			t.Errorf("slow Upload failed: %v", err)
		}
		done <- out
	}()

	// Wait until the slow upload has begun.
	for env.Gallery.Generation() == 0 {
		time.Sleep(time.Millisecond)
	}

	fastEnv := *env
	fastEnv.Service = &fakeService{archive: buildArchive(t, "Fast/x.png")}
	if _, err := Upload(context.Background(), &fastEnv, UploadInput{Filename: "fast.py", Source: strings.NewReader("b")}); err != nil {
		t.Fatalf("fast Upload failed: %v", err)
	}

	close(slow.gate)
	out := <-done
	if out == nil || !out.Superseded {
		t.Fatalf("slow output = %+v, want superseded", out)
	}
	if out.ImageCount != 2 || len(out.Groups) != 1 || out.Groups[0].Key != "Slow" {
		t.Errorf("slow output = %+v", out)
	}

	snap := env.Gallery.Snapshot()
	if snap.Selected != "Fast" || store.Live() != 1 {
		t.Errorf("gallery = %+v live=%d, want only Fast", snap, store.Live())
	}
}

func TestUpload_Validation(t *testing.T) {
	env, _ := newTestEnv(t, &fakeService{})

	if _, err := Upload(context.Background(), env, UploadInput{Filename: " ", Source: strings.NewReader("x")}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("blank filename err = %v", err)
	}
	if _, err := Upload(context.Background(), env, UploadInput{Filename: "a.py"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("nil source err = %v", err)
	}
}

func TestUpload_HistoryLimit(t *testing.T) {
	svc := &fakeService{archive: buildArchive(t, "A/1.png")}
	env, _ := newTestEnv(t, svc)
	env.Config.HistoryLimit = 2

	for i := 0; i < 4; i++ {
		if _, err := Upload(context.Background(), env, UploadInput{Filename: "a.py", Source: strings.NewReader("x")}); err != nil {
			t.Fatalf("Upload %d failed: %v", i, err)
		}
	}
	list, _ := List(env.DB, ListInput{})
	if list.Pagination.Total != 2 {
		t.Errorf("history total = %d, want 2", list.Pagination.Total)
	}
}

func TestUpload_SavePath(t *testing.T) {
	svc := &fakeService{archive: buildArchive(t, "A/1.png")}
	env, _ := newTestEnv(t, svc)
	dir := t.TempDir()
	env.Config.AllowedPaths = []string{dir}

	path := dir + "/out.zip"
	out, err := Upload(context.Background(), env, UploadInput{Filename: "a.py", Source: strings.NewReader("x"), SavePath: path})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if out.SavedTo != path {
		t.Errorf("SavedTo = %q", out.SavedTo)
	}
}

func TestUpload_InvalidSavePathChangesNothing(t *testing.T) {
	svc := &fakeService{archive: buildArchive(t, "A/1.png")}
	env, store := newTestEnv(t, svc)
	if _, err := Upload(context.Background(), env, UploadInput{Filename: "a.py", Source: strings.NewReader("x")}); err != nil {
		t.Fatalf("first Upload failed: %v", err)
	}
	gen := env.Gallery.Generation()
	svc.archive = buildArchive(t, "B/1.png", "B/2.png")

	dir := t.TempDir()
	env.Config.AllowedPaths = []string{dir}
	for _, path := range []string{dir + "/out.txt", t.TempDir() + "/out.zip"} {
		_, err := Upload(context.Background(), env, UploadInput{Filename: "b.py", Source: strings.NewReader("y"), SavePath: path})
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("SavePath %q err = %v, want INVALID_REQUEST", path, err)
		}
	}

	if len(svc.names) != 1 {
		t.Errorf("service calls = %d, want 1", len(svc.names))
	}
	if env.Gallery.Generation() != gen {
		t.Errorf("generation = %d, want %d", env.Gallery.Generation(), gen)
	}
	snap := env.Gallery.Snapshot()
	if snap.Selected != "A" || snap.ImageCount != 1 || store.Live() != 1 {
		t.Errorf("gallery = %+v live=%d, want the first upload", snap, store.Live())
	}
	list, _ := List(env.DB, ListInput{})
	if list.Pagination.Total != 1 {
		t.Errorf("history total = %d, want 1", list.Pagination.Total)
	}
}

func TestShow_ReingestsStoredUpload(t *testing.T) {
	svc := &fakeService{archive: buildArchive(t, "First/1.png")}
	env, store := newTestEnv(t, svc)
	first, err := Upload(context.Background(), env, UploadInput{Filename: "a.py", Source: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	svc.archive = buildArchive(t, "Second/1.png", "Second/2.png")
	if _, err := Upload(context.Background(), env, UploadInput{Filename: "b.py", Source: strings.NewReader("y")}); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	out, err := Show(context.Background(), env, ShowInput{ID: first.ID})
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if out.Selected != "First" || out.ImageCount != 1 {
		t.Errorf("output = %+v", out)
	}
	if store.Live() != 1 {
		t.Errorf("live = %d, want 1", store.Live())
	}

	if _, err := Show(context.Background(), env, ShowInput{ID: "missing"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Show(missing) err = %v", err)
	}
}
