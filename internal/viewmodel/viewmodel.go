// Package viewmodel bridges the places source and icon downloads to
// single-shot streams observed on the main looper.
package viewmodel

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log"
	"net/http"
	"time"

	"poimap/internal/livedata"
	"poimap/internal/looper"
	"poimap/internal/models"
	"poimap/internal/storage"
)

const recordTimeout = 10 * time.Second

// PlacesSource answers nearby searches for a "lat,lng" location.
type PlacesSource interface {
	PointsOfInterest(ctx context.Context, location string) ([]models.Place, error)
}

// IconCache stores raw icon bytes by URL. Get returns storage.ErrNotFound on
// a miss.
type IconCache interface {
	Get(ctx context.Context, iconURL string) ([]byte, error)
	Put(ctx context.Context, iconURL string, data []byte, contentType string) error
}

// PlacesRecorder keeps a history of answered searches.
type PlacesRecorder interface {
	RecordPlaces(ctx context.Context, location string, places []models.Place) error
}

// MapViewModel serves the map screen's places and marker icons.
type MapViewModel struct {
	places     PlacesSource
	main       looper.Poster
	io         *livedata.Dispatcher
	httpClient *http.Client
	cache      IconCache
	recorder   PlacesRecorder

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a MapViewModel.
type Option func(*MapViewModel)

// WithHTTPClient sets the client used for icon downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(vm *MapViewModel) { vm.httpClient = hc }
}

// WithIconCache keeps downloaded icons in c.
func WithIconCache(c IconCache) Option {
	return func(vm *MapViewModel) { vm.cache = c }
}

// WithRecorder records every answered search with r.
func WithRecorder(r PlacesRecorder) Option {
	return func(vm *MapViewModel) { vm.recorder = r }
}

// New returns a view model that runs its work on io and delivers on main.
func New(ctx context.Context, places PlacesSource, main looper.Poster, io *livedata.Dispatcher, opts ...Option) *MapViewModel {
	ctx, cancel := context.WithCancel(ctx)
	vm := &MapViewModel{
		places:     places,
		main:       main,
		io:         io,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// PointsOfInterest fetches places around location in the background and
// emits the list once. Failures emit an empty list.
func (vm *MapViewModel) PointsOfInterest(location string) *livedata.LiveData[[]models.Place] {
	return livedata.Go(vm.ctx, vm.main, vm.io, func(ctx context.Context) []models.Place {
		points, err := vm.places.PointsOfInterest(ctx, location)
		if err != nil {
			log.Printf("MapViewModel.PointsOfInterest - error for %s: %v", location, err)
			return []models.Place{}
		}
		if points == nil {
			points = []models.Place{}
		}
		if vm.recorder != nil {
			vm.record(location, points)
		}
		return points
	})
}

// record stores the answered search in its own background job, apart from
// the emission.
func (vm *MapViewModel) record(location string, points []models.Place) {
	vm.io.Go(vm.ctx, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()
		if err := vm.recorder.RecordPlaces(ctx, location, points); err != nil {
			log.Printf("MapViewModel.PointsOfInterest - failed to record places: %v", err)
		}
	})
}

// BitmapFromURL downloads and decodes the image at rawURL. It emits exactly
// one non-nil image: the decoded icon or the placeholder.
func (vm *MapViewModel) BitmapFromURL(rawURL string) *livedata.LiveData[image.Image] {
	return livedata.Go(vm.ctx, vm.main, vm.io, func(ctx context.Context) image.Image {
		img, err := vm.fetchBitmap(ctx, rawURL)
		if err != nil {
			log.Printf("MapViewModel.BitmapFromURL - falling back to placeholder, error=%v", err)
			return Placeholder()
		}
		return img
	})
}

func (vm *MapViewModel) fetchBitmap(ctx context.Context, rawURL string) (image.Image, error) {
	if _, err := checkIconURL(rawURL); err != nil {
		return nil, err
	}

	if vm.cache != nil {
		data, err := vm.cache.Get(ctx, rawURL)
		switch {
		case err == nil:
			if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
				return img, nil
			}
			log.Printf("Cached icon for %s does not decode, downloading again", rawURL)
		case !errors.Is(err, storage.ErrNotFound):
			log.Printf("Icon cache lookup failed for %s: %v", rawURL, err)
		}
	}

	data, contentType, img, err := DownloadIcon(ctx, vm.httpClient, rawURL)
	if err != nil {
		return nil, err
	}

	if vm.cache != nil {
		if err := vm.cache.Put(ctx, rawURL, data, contentType); err != nil {
			log.Printf("Failed to cache icon %s: %v", rawURL, err)
		}
	}
	return img, nil
}

// Close cancels background work that has not started or is still running.
// It returns without waiting since it is called on the main looper.
func (vm *MapViewModel) Close() {
	vm.cancel()
}
