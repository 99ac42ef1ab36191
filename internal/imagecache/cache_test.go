package imagecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valter-silva-au/taskflow/pkg/models"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image-data")

type imageServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()
	s := &imageServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		http.Redirect(w, r, "/img.png", http.StatusFound)
	})
	for _, name := range []string{"first", "second"} {
		body := []byte("image-" + name)
		mux.HandleFunc("/"+name+".png", func(w http.ResponseWriter, r *http.Request) {
			s.hits.Add(1)
			_, _ = w.Write(body)
		})
	}
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func openTestCache(t *testing.T, dir string, srv *imageServer) *Cache {
	t.Helper()
	c, err := Open(models.ImageConfig{CacheDir: dir}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func imageTask(id string, urls ...string) *models.Task {
	task := &models.Task{ID: id}
	task.Blocks = append(task.Blocks, models.Block{ID: id + "-p", Type: models.BlockParagraph, Text: "intro"})
	for i, u := range urls {
		task.Blocks = append(task.Blocks, models.Block{
			ID:   id + "-img" + string(rune('a'+i)),
			Type: models.BlockImage,
			URL:  u,
		})
	}
	return task
}

func TestFetchTaskImages_DownloadsAndReuses(t *testing.T) {
	srv := newImageServer(t)
	dir := t.TempDir()
	c := openTestCache(t, dir, srv)
	task := imageTask("ab-cd", srv.URL+"/img.png", srv.URL+"/moved")

	paths := c.FetchTaskImages(context.Background(), task)
	want := []string{filepath.Join(dir, "abcd_abcdimga.png"), filepath.Join(dir, "abcd_abcdimgb.png")}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil || string(data) != string(pngBytes) {
			t.Errorf("%s: data = %q, err = %v", p, data, err)
		}
	}
	hits := srv.hits.Load()
	if hits != 3 {
		t.Errorf("hits = %d, want 3 (one redirect)", hits)
	}

	again := c.FetchTaskImages(context.Background(), task)
	if len(again) != 2 {
		t.Fatalf("second fetch = %v", again)
	}
	if srv.hits.Load() != hits {
		t.Errorf("second fetch downloaded again")
	}
}

func TestFetchTaskImages_InsertedImageKeepsCachedFile(t *testing.T) {
	srv := newImageServer(t)
	c := openTestCache(t, t.TempDir(), srv)
	ctx := context.Background()

	task := &models.Task{ID: "t1", Blocks: []models.Block{
		{ID: "blk-a", Type: models.BlockImage, URL: srv.URL + "/first.png"},
	}}
	before := c.FetchTaskImages(ctx, task)
	if len(before) != 1 {
		t.Fatalf("first fetch = %v", before)
	}

	task.Blocks = append([]models.Block{
		{ID: "blk-b", Type: models.BlockImage, URL: srv.URL + "/second.png"},
	}, task.Blocks...)
	after := c.FetchTaskImages(ctx, task)
	if len(after) != 2 {
		t.Fatalf("second fetch = %v", after)
	}
	if after[0] == after[1] {
		t.Fatalf("both image blocks share %s", after[0])
	}
	if after[1] != before[0] {
		t.Errorf("cached image moved from %s to %s", before[0], after[1])
	}

	for path, want := range map[string]string{after[0]: "image-second", after[1]: "image-first"} {
		data, err := os.ReadFile(path)
		if err != nil || string(data) != want {
			t.Errorf("%s = %q, %v; want %q", path, data, err, want)
		}
	}
	if hits := srv.hits.Load(); hits != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		taskID, blockID string
		index           int
		want            string
	}{
		{"ab-cd", "blk-1", 0, "abcd_blk1.png"},
		{"ab-cd", "", 3, "abcd_3.png"},
		{"t1", "../x", 0, "t1_x.png"},
	}
	for _, tt := range tests {
		if got := fileName(tt.taskID, tt.blockID, tt.index); got != tt.want {
			t.Errorf("fileName(%q, %q, %d) = %q, want %q", tt.taskID, tt.blockID, tt.index, got, tt.want)
		}
	}
}

func TestFetchTaskImages_IndexSurvivesReopen(t *testing.T) {
	srv := newImageServer(t)
	dir := t.TempDir()
	task := imageTask("t1", srv.URL+"/img.png")

	first := openTestCache(t, dir, srv)
	_ = first.FetchTaskImages(context.Background(), task)
	_ = first.Close()

	second := openTestCache(t, dir, srv)
	entries, err := second.Entries(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].BlockID != "t1-imga" || entries[0].Bytes != int64(len(pngBytes)) {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFetchTaskImages_FailureYieldsEmpty(t *testing.T) {
	srv := newImageServer(t)
	c := openTestCache(t, t.TempDir(), srv)

	paths := c.FetchTaskImages(context.Background(), imageTask("t1", srv.URL+"/img.png", srv.URL+"/gone"))
	if paths == nil || len(paths) != 0 {
		t.Errorf("paths = %#v, want empty non-nil slice", paths)
	}
}

func TestFetchTaskImages_NoImages(t *testing.T) {
	srv := newImageServer(t)
	c := openTestCache(t, t.TempDir(), srv)

	if paths := c.FetchTaskImages(context.Background(), imageTask("t1")); len(paths) != 0 {
		t.Errorf("paths = %v, want none", paths)
	}
	if srv.hits.Load() != 0 {
		t.Error("requests made for a task without images")
	}
}

func TestPrune(t *testing.T) {
	srv := newImageServer(t)
	c := openTestCache(t, t.TempDir(), srv)
	c.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	paths := c.FetchTaskImages(context.Background(), imageTask("t1", srv.URL+"/img.png"))
	if len(paths) != 1 {
		t.Fatalf("paths = %v", paths)
	}

	n, err := c.Prune(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v; want 1", n, err)
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Error("pruned file still on disk")
	}
	if entries, _ := c.Entries(context.Background(), ""); len(entries) != 0 {
		t.Errorf("entries after prune = %v", entries)
	}
}
