package viewmodel

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"poimap/internal/lifecycle"
	"poimap/internal/livedata"
	"poimap/internal/looper"
	"poimap/internal/models"
	"poimap/internal/storage"
)

type fakePlaces struct {
	places []models.Place
	err    error
	got    string
}

func (f *fakePlaces) PointsOfInterest(_ context.Context, location string) ([]models.Place, error) {
	f.got = location
	return f.places, f.err
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (c *memoryCache) Put(_ context.Context, key string, data []byte, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	c.puts++
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type harness struct {
	main  *looper.Looper
	owner *lifecycle.Registry
	ctx   context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	main := looper.New(32)
	go main.Run(ctx)
	owner := lifecycle.NewRegistry()
	_ = owner.Handle(lifecycle.OnCreate)
	_ = owner.Handle(lifecycle.OnStart)
	return &harness{main: main, owner: owner, ctx: ctx}
}

// await observes ld and waits for its single emission.
func await[T any](t *testing.T, h *harness, ld *livedata.LiveData[T]) T {
	t.Helper()
	got := make(chan T, 1)
	if err := h.main.Sync(h.ctx, func() { ld.Observe(h.owner, func(v T) { got <- v }) }); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	select {
	case v := <-got:
		return v
	case <-h.ctx.Done():
		t.Fatal("timed out waiting for emission")
	}
	var zero T
	return zero
}

func TestMapViewModel_PointsOfInterest(t *testing.T) {
	tests := []struct {
		name      string
		source    *fakePlaces
		wantNames []string
	}{
		{
			name:      "emits source results",
			source:    &fakePlaces{places: []models.Place{{Name: "A"}, {Name: "B"}}},
			wantNames: []string{"A", "B"},
		},
		{
			name:      "error becomes empty list",
			source:    &fakePlaces{err: errors.New("network down")},
			wantNames: []string{},
		},
		{
			name:      "nil becomes empty list",
			source:    &fakePlaces{},
			wantNames: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			vm := New(h.ctx, tt.source, h.main, livedata.NewDispatcher(4))
			defer vm.Close()

			got := await(t, h, vm.PointsOfInterest("47.6,-122.3"))
			if got == nil {
				t.Fatal("emitted nil slice")
			}
			if len(got) != len(tt.wantNames) {
				t.Fatalf("len = %d; want %d", len(got), len(tt.wantNames))
			}
			for i, n := range tt.wantNames {
				if got[i].Name != n {
					t.Errorf("idx %d: got %q want %q", i, got[i].Name, n)
				}
			}
			if tt.source.got != "47.6,-122.3" {
				t.Errorf("source queried with %q", tt.source.got)
			}
		})
	}
}

func TestMapViewModel_BitmapFromURL(t *testing.T) {
	icon := pngBytes(t, 4, 3)
	mux := http.NewServeMux()
	mux.HandleFunc("/icon.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(icon)
	})
	mux.HandleFunc("/garbage.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tests := []struct {
		name            string
		url             string
		wantPlaceholder bool
	}{
		{name: "decodes png", url: server.URL + "/icon.png"},
		{name: "missing icon", url: server.URL + "/missing.png", wantPlaceholder: true},
		{name: "undecodable body", url: server.URL + "/garbage.png", wantPlaceholder: true},
		{name: "relative url", url: "/icon.png", wantPlaceholder: true},
		{name: "unsupported scheme", url: "ftp://example.com/icon.png", wantPlaceholder: true},
		{name: "syntactically invalid", url: "http://[::1", wantPlaceholder: true},
		{name: "unreachable host", url: "http://127.0.0.1:1/icon.png", wantPlaceholder: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			vm := New(h.ctx, &fakePlaces{}, h.main, livedata.NewDispatcher(4))
			defer vm.Close()

			got := await(t, h, vm.BitmapFromURL(tt.url))
			if got == nil {
				t.Fatal("emitted nil image")
			}
			isPlaceholder := got == Placeholder()
			if isPlaceholder != tt.wantPlaceholder {
				t.Fatalf("placeholder = %v; want %v", isPlaceholder, tt.wantPlaceholder)
			}
			if !tt.wantPlaceholder && got.Bounds().Dx() != 4 {
				t.Errorf("decoded width = %d; want 4", got.Bounds().Dx())
			}
		})
	}
}

func TestMapViewModel_BitmapFromURL_UsesCache(t *testing.T) {
	icon := pngBytes(t, 2, 2)
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(icon)
	}))
	defer server.Close()

	h := newHarness(t)
	cache := newMemoryCache()
	vm := New(h.ctx, &fakePlaces{}, h.main, livedata.NewDispatcher(1), WithIconCache(cache))
	defer vm.Close()

	iconURL := server.URL + "/cached.png"
	first := await(t, h, vm.BitmapFromURL(iconURL))
	second := await(t, h, vm.BitmapFromURL(iconURL))

	if first == Placeholder() || second == Placeholder() {
		t.Fatal("expected decoded icons")
	}
	if hits != 1 {
		t.Errorf("server hits = %d; want 1", hits)
	}
	if cache.puts != 1 {
		t.Errorf("cache puts = %d; want 1", cache.puts)
	}
}

func TestMapViewModel_BitmapFromURL_ReplacesBadCacheEntry(t *testing.T) {
	icon := pngBytes(t, 2, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(icon)
	}))
	defer server.Close()

	h := newHarness(t)
	cache := newMemoryCache()
	iconURL := server.URL + "/broken.png"
	cache.data[iconURL] = []byte("truncated")
	vm := New(h.ctx, &fakePlaces{}, h.main, livedata.NewDispatcher(1), WithIconCache(cache))
	defer vm.Close()

	if img := await(t, h, vm.BitmapFromURL(iconURL)); img == Placeholder() {
		t.Fatal("expected decoded icon")
	}
	if !bytes.Equal(cache.data[iconURL], icon) {
		t.Errorf("cache entry not replaced: %q", cache.data[iconURL])
	}
}

// blockingRecorder holds every RecordPlaces call until release is closed.
type blockingRecorder struct {
	called  chan string
	release chan struct{}
}

func (r *blockingRecorder) RecordPlaces(ctx context.Context, location string, _ []models.Place) error {
	r.called <- location
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestMapViewModel_PointsOfInterest_DoesNotWaitForRecorder(t *testing.T) {
	h := newHarness(t)
	rec := &blockingRecorder{called: make(chan string, 1), release: make(chan struct{})}
	defer close(rec.release)

	src := &fakePlaces{places: []models.Place{{Name: "Cafe"}}}
	vm := New(h.ctx, src, h.main, livedata.NewDispatcher(2), WithRecorder(rec))
	defer vm.Close()

	got := make(chan []models.Place, 1)
	ld := vm.PointsOfInterest("1,2")
	if err := h.main.Sync(h.ctx, func() { ld.Observe(h.owner, func(v []models.Place) { got <- v }) }); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	select {
	case places := <-got:
		if len(places) != 1 || places[0].Name != "Cafe" {
			t.Fatalf("places = %+v", places)
		}
	case <-time.After(time.Second):
		t.Fatal("emission held back by the recorder")
	}

	select {
	case loc := <-rec.called:
		if loc != "1,2" {
			t.Errorf("recorded location = %q; want 1,2", loc)
		}
	case <-h.ctx.Done():
		t.Fatal("recorder never called")
	}
}

func TestDownloadIcon(t *testing.T) {
	icon := pngBytes(t, 3, 3)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(icon)
		case "/text":
			_, _ = w.Write([]byte("hello"))
		case "/huge":
			_, _ = w.Write(bytes.Repeat([]byte{1}, MaxIconBytes+1))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"ok", server.URL + "/ok.png", false},
		{"not an image", server.URL + "/text", true},
		{"too large", server.URL + "/huge", true},
		{"not found", server.URL + "/missing", true},
		{"bad scheme", "ftp://example.com/icon.png", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, contentType, img, err := DownloadIcon(context.Background(), server.Client(), tc.url)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if data != nil || img != nil {
					t.Errorf("got data on error")
				}
				return
			}
			if !bytes.Equal(data, icon) || contentType != "image/png" {
				t.Errorf("data = %d bytes, content type %q", len(data), contentType)
			}
			if img.Bounds().Dx() != 3 {
				t.Errorf("bounds = %v", img.Bounds())
			}
		})
	}
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder()
	if p != Placeholder() {
		t.Fatal("placeholder is not shared")
	}
	b := p.Bounds()
	if b.Dx() != placeholderSize || b.Dy() != placeholderSize {
		t.Fatalf("bounds = %v", b)
	}
	// centre is inside the star, corners are not
	if _, _, _, a := p.At(placeholderSize/2, placeholderSize/2).RGBA(); a == 0 {
		t.Error("centre pixel is transparent")
	}
	if _, _, _, a := p.At(0, 0).RGBA(); a != 0 {
		t.Error("corner pixel is painted")
	}
}
