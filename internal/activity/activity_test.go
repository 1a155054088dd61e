package activity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"poimap/internal/lifecycle"
	"poimap/internal/livedata"
	"poimap/internal/locationsvc"
	"poimap/internal/looper"
	"poimap/internal/mapview"
	"poimap/internal/models"
	"poimap/internal/permission"
	"poimap/internal/viewmodel"
	"poimap/pkg/places"
)

type fakePlaces struct {
	mu      sync.Mutex
	results map[string][]models.Place
	gates   map[string]chan struct{}
	calls   []string
	err     error
}

func (f *fakePlaces) PointsOfInterest(ctx context.Context, location string) ([]models.Place, error) {
	f.mu.Lock()
	f.calls = append(f.calls, location)
	gate := f.gates[location]
	res, err := f.results[location], f.err
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res, err
}

func (f *fakePlaces) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

type fakeSubscription struct {
	client *fakeLocations
}

func (s *fakeSubscription) Remove() {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	s.client.cb = nil
	s.client.removed++
}

// fakeLocations stands in for the fused client; callbacks run on main.
type fakeLocations struct {
	main *looper.Looper

	mu       sync.Mutex
	last     *models.Fix
	cb       locationsvc.Callback
	requests int
	removed  int
}

func (f *fakeLocations) LastLocation(fn func(*models.Fix)) {
	f.mu.Lock()
	last := f.last
	f.mu.Unlock()
	f.main.Post(func() { fn(last) })
}

func (f *fakeLocations) RequestUpdates(_ locationsvc.Request, cb locationsvc.Callback) (locationsvc.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
	f.requests++
	return &fakeSubscription{client: f}, nil
}

func (f *fakeLocations) deliver(fix models.Fix) bool {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	f.main.Post(func() { cb(locationsvc.Result{Locations: []models.Fix{fix}}) })
	return true
}

func (f *fakeLocations) counts() (requests, removed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests, f.removed
}

type fixture struct {
	ctx       context.Context
	main      *looper.Looper
	places    *fakePlaces
	locations *fakeLocations
	perms     *permission.Store
	activity  *MapActivity
}

func newFixture(t *testing.T, source viewmodel.PlacesSource, perms *permission.Store) *fixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	main := looper.New(64)
	go main.Run(ctx)

	fp, _ := source.(*fakePlaces)
	vm := viewmodel.New(ctx, source, main, livedata.NewDispatcher(4))
	locs := &fakeLocations{main: main}
	cfg := DefaultConfig()
	cfg.CredentialsKey = "test-key"
	return &fixture{
		ctx:       ctx,
		main:      main,
		places:    fp,
		locations: locs,
		perms:     perms,
		activity:  New(cfg, main, vm, locs, perms),
	}
}

func grantedStore() *permission.Store {
	return permission.NewStore(permission.AccessFineLocation, permission.AccessCoarseLocation)
}

func place(name string, lat, lng float64, icon string) models.Place {
	return models.Place{
		Geometry: models.Geometry{Location: models.Location{Lat: lat, Lng: lng}},
		Name:     name,
		Icon:     icon,
	}
}

// waitFor polls the activity snapshot until cond holds.
func (f *fixture) waitFor(t *testing.T, what string, cond func(mapview.Snapshot) bool) mapview.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, err := f.activity.Snapshot(f.ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot %+v", what, snap)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func pinCount(n int) func(mapview.Snapshot) bool {
	return func(s mapview.Snapshot) bool { return len(s.Pins) == n }
}

func titles(s mapview.Snapshot) []string {
	out := make([]string, len(s.Pins))
	for i, p := range s.Pins {
		out[i] = p.Title
	}
	return out
}

func iconServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMapActivity_PinsCurrentLocationAndPlaces(t *testing.T) {
	icons := iconServer(t)
	fp := &fakePlaces{results: map[string][]models.Place{
		"47.6,-122.3": {
			place("Museum", 47.61, -122.31, icons.URL+"/museum.png"),
			place("Park", 47.59, -122.29, icons.URL+"/park.png"),
			place("Cafe", 47.60, -122.32, icons.URL+"/cafe.png"),
		},
	}}
	f := newFixture(t, fp, grantedStore())
	f.locations.last = &models.Fix{Latitude: 47.6, Longitude: -122.3}

	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	snap := f.waitFor(t, "4 pins with icons", func(s mapview.Snapshot) bool {
		if len(s.Pins) != 4 {
			return false
		}
		for _, p := range s.Pins[1:] {
			if !p.HasIcon {
				return false
			}
		}
		return true
	})

	want := []string{"Your location", "Museum", "Park", "Cafe"}
	if got := titles(snap); !reflect.DeepEqual(got, want) {
		t.Errorf("titles = %v, want %v", got, want)
	}
	if fp.lastCall() != "47.6,-122.3" {
		t.Errorf("places queried for %q", fp.lastCall())
	}
	if snap.Scene.Zoom != 15 || snap.Scene.Center != (models.Location{Lat: 47.6, Lng: -122.3}) {
		t.Errorf("scene = %+v", snap.Scene)
	}
	if snap.Pins[0].HasIcon {
		t.Error("current location pin should not have an icon")
	}

	data, err := f.activity.PinIcon(f.ctx, 1)
	if err != nil {
		t.Fatalf("PinIcon: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode icon: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("icon width = %d, want 8", img.Bounds().Dx())
	}
	if requests, _ := f.locations.counts(); requests != 1 {
		t.Errorf("location updates requested %d times, want 1", requests)
	}
}

func TestMapActivity_PinCountIsCapped(t *testing.T) {
	tests := []struct {
		places int
		want   int
	}{
		{places: 0, want: 1},
		{places: 5, want: 6},
		{places: 7, want: 6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d places", tt.places), func(t *testing.T) {
			var list []models.Place
			for i := 0; i < tt.places; i++ {
				list = append(list, place(fmt.Sprintf("P%d", i), 1, float64(i), ""))
			}
			fp := &fakePlaces{results: map[string][]models.Place{"1,2": list}}
			f := newFixture(t, fp, grantedStore())
			f.locations.last = &models.Fix{Latitude: 1, Longitude: 2}

			if err := f.activity.Launch(f.ctx, nil); err != nil {
				t.Fatalf("Launch: %v", err)
			}
			f.waitFor(t, "places query", func(mapview.Snapshot) bool { return fp.lastCall() == "1,2" })
			snap := f.waitFor(t, "pins", pinCount(tt.want))
			if tt.places > 0 && snap.Pins[len(snap.Pins)-1].Title != fmt.Sprintf("P%d", tt.want-2) {
				t.Errorf("last pin = %q", snap.Pins[len(snap.Pins)-1].Title)
			}
		})
	}
}

func TestMapActivity_MalformedPlacesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": "nope"}`))
	}))
	defer srv.Close()

	client := places.NewClient("key", places.WithBaseURL(srv.URL))
	f := newFixture(t, client, grantedStore())
	f.locations.last = &models.Fix{Latitude: 10, Longitude: 20}

	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	snap := f.waitFor(t, "current location pin", pinCount(1))
	// Give the empty result time to land; the count must stay at one.
	time.Sleep(100 * time.Millisecond)
	snap = f.waitFor(t, "current location pin", pinCount(1))
	if snap.Pins[0].Title != "Your location" {
		t.Errorf("pin = %+v", snap.Pins[0])
	}
}

func TestMapActivity_PlacesErrorKeepsLocationPin(t *testing.T) {
	fp := &fakePlaces{err: errors.New("quota exceeded")}
	f := newFixture(t, fp, grantedStore())
	f.locations.last = &models.Fix{Latitude: 3, Longitude: 4}

	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	f.waitFor(t, "places query", func(mapview.Snapshot) bool { return fp.lastCall() == "3,4" })
	f.waitFor(t, "current location pin", pinCount(1))
}

func TestMapActivity_FailingIconUsesPlaceholder(t *testing.T) {
	icons := iconServer(t)
	fp := &fakePlaces{results: map[string][]models.Place{
		"5,6": {
			place("Broken", 5, 6, icons.URL+"/missing.png"),
			place("Invalid", 5, 6, "::not a url"),
		},
	}}
	f := newFixture(t, fp, grantedStore())
	f.locations.last = &models.Fix{Latitude: 5, Longitude: 6}

	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	f.waitFor(t, "placeholder icons", func(s mapview.Snapshot) bool {
		return len(s.Pins) == 3 && s.Pins[1].HasIcon && s.Pins[2].HasIcon
	})

	want := viewmodel.Placeholder().Bounds()
	for i := 1; i <= 2; i++ {
		data, err := f.activity.PinIcon(f.ctx, i)
		if err != nil {
			t.Fatalf("PinIcon(%d): %v", i, err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if img.Bounds() != want {
			t.Errorf("pin %d icon bounds = %v, want placeholder %v", i, img.Bounds(), want)
		}
	}
}

func TestMapActivity_LocationUpdatesReplacePins(t *testing.T) {
	fp := &fakePlaces{results: map[string][]models.Place{
		"1,1": {place("Old", 1, 1, "")},
		"2,2": {place("New A", 2, 2, ""), place("New B", 2, 2, "")},
	}}
	f := newFixture(t, fp, grantedStore())

	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	// No last location: nothing pinned yet.
	if snap, _ := f.activity.Snapshot(f.ctx); len(snap.Pins) != 0 {
		t.Fatalf("expected no pins before a fix, got %+v", snap.Pins)
	}

	f.locations.deliver(models.Fix{Latitude: 1, Longitude: 1})
	f.waitFor(t, "first fix pins", pinCount(2))

	f.locations.deliver(models.Fix{Latitude: 2, Longitude: 2})
	snap := f.waitFor(t, "second fix pins", pinCount(3))
	want := []string{"Your location", "New A", "New B"}
	if got := titles(snap); !reflect.DeepEqual(got, want) {
		t.Errorf("titles = %v, want %v", got, want)
	}
}

func TestMapActivity_DropsSupersededResults(t *testing.T) {
	gate := make(chan struct{})
	fp := &fakePlaces{
		results: map[string][]models.Place{
			"1,1": {place("Stale", 1, 1, "")},
			"2,2": {place("Fresh", 2, 2, "")},
		},
		gates: map[string]chan struct{}{"1,1": gate},
	}
	f := newFixture(t, fp, grantedStore())
	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	f.locations.deliver(models.Fix{Latitude: 1, Longitude: 1})
	f.locations.deliver(models.Fix{Latitude: 2, Longitude: 2})
	f.waitFor(t, "fresh pins", pinCount(2))

	close(gate)
	time.Sleep(100 * time.Millisecond)
	snap := f.waitFor(t, "fresh pins", pinCount(2))
	if snap.Pins[1].Title != "Fresh" {
		t.Errorf("pins = %v, stale result was applied", titles(snap))
	}
}

func TestMapActivity_RequestsPermissionWhenMissing(t *testing.T) {
	fp := &fakePlaces{results: map[string][]models.Place{"7,8": {place("Pier", 7, 8, "")}}}
	perms := permission.NewStore()
	f := newFixture(t, fp, perms)
	f.locations.last = &models.Fix{Latitude: 7, Longitude: 8}

	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := perms.Pending(); !reflect.DeepEqual(got, []int{LocationPermissionRequestCode}) {
		t.Fatalf("pending requests = %v", got)
	}
	if requests, _ := f.locations.counts(); requests != 0 {
		t.Fatalf("updates requested without permission")
	}

	// Denial keeps the map empty.
	perms.Resolve()
	time.Sleep(50 * time.Millisecond)
	if snap, _ := f.activity.Snapshot(f.ctx); len(snap.Pins) != 0 {
		t.Fatalf("pins after denial: %+v", snap.Pins)
	}

	perms.Grant(permission.AccessFineLocation, permission.AccessCoarseLocation)
	if err := f.activity.Background(f.ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.activity.Foreground(f.ctx); err != nil {
		t.Fatal(err)
	}
	f.waitFor(t, "pins after grant", pinCount(2))
}

func TestMapActivity_GrantResolvesPendingRequest(t *testing.T) {
	fp := &fakePlaces{results: map[string][]models.Place{"7,8": {place("Pier", 7, 8, "")}}}
	perms := permission.NewStore()
	f := newFixture(t, fp, perms)
	f.locations.last = &models.Fix{Latitude: 7, Longitude: 8}

	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	perms.Grant(permission.AccessFineLocation, permission.AccessCoarseLocation)
	if n := perms.Resolve(); n != 1 {
		t.Fatalf("Resolve() answered %d requests, want 1", n)
	}

	f.waitFor(t, "pins after grant", pinCount(2))
	deadline := time.Now().Add(2 * time.Second)
	for {
		if requests, _ := f.locations.counts(); requests == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("location updates not started after grant")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMapActivity_PauseStopsUpdates(t *testing.T) {
	f := newFixture(t, &fakePlaces{}, grantedStore())
	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := f.activity.Background(f.ctx); err != nil {
		t.Fatalf("Background: %v", err)
	}
	if state, _ := f.activity.State(f.ctx); state != lifecycle.Stopped {
		t.Errorf("state = %s, want stopped", state)
	}
	if f.locations.deliver(models.Fix{Latitude: 1, Longitude: 1}) {
		t.Error("callback still registered after pause")
	}
	if err := f.activity.Foreground(f.ctx); err != nil {
		t.Fatalf("Foreground: %v", err)
	}
	requests, removed := f.locations.counts()
	if requests != 2 || removed != 1 {
		t.Errorf("requests=%d removed=%d, want 2 and 1", requests, removed)
	}
}

func TestMapActivity_Lifecycle(t *testing.T) {
	f := newFixture(t, &fakePlaces{}, grantedStore())
	if err := f.activity.Launch(f.ctx, nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if state, _ := f.activity.State(f.ctx); state != lifecycle.Resumed {
		t.Errorf("state = %s, want resumed", state)
	}
	if err := f.activity.Launch(f.ctx, nil); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("second Launch = %v, want ErrInvalidTransition", err)
	}
	if err := f.activity.LowMemory(f.ctx); err != nil {
		t.Errorf("LowMemory: %v", err)
	}

	f.locations.deliver(models.Fix{Latitude: 9, Longitude: 9})
	f.waitFor(t, "pin", pinCount(1))

	saved, err := f.activity.Finish(f.ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if state, _ := f.activity.State(f.ctx); state != lifecycle.Destroyed {
		t.Errorf("state = %s, want destroyed", state)
	}

	// A recreated activity restores the scene from the saved state.
	g := newFixture(t, &fakePlaces{}, permission.NewStore())
	if err := g.activity.Launch(g.ctx, saved); err != nil {
		t.Fatalf("relaunch: %v", err)
	}
	snap, err := g.activity.Snapshot(g.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Scene.Center != (models.Location{Lat: 9, Lng: 9}) || snap.Scene.Zoom != 15 {
		t.Errorf("restored scene = %+v", snap.Scene)
	}
}
