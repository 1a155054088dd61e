// Package activity drives the map screen: it follows location fixes, keeps
// the map centred on the latest one and pins the nearby points of interest.
package activity

import (
	"context"
	"errors"
	"image"
	"log"

	"poimap/internal/lifecycle"
	"poimap/internal/livedata"
	"poimap/internal/locationsvc"
	"poimap/internal/looper"
	"poimap/internal/mapview"
	"poimap/internal/models"
	"poimap/internal/permission"
)

// LocationPermissionRequestCode identifies the location permission request.
const LocationPermissionRequestCode = 1

var locationPermissions = []permission.Permission{
	permission.AccessFineLocation,
	permission.AccessCoarseLocation,
}

// ViewModel is what the activity needs from the map view-model.
type ViewModel interface {
	PointsOfInterest(location string) *livedata.LiveData[[]models.Place]
	BitmapFromURL(url string) *livedata.LiveData[image.Image]
	Close()
}

// Config holds the map screen settings.
type Config struct {
	CredentialsKey      string
	Zoom                float64
	MaxPointsOfInterest int
	YourLocationTitle   string
	Request             locationsvc.Request
	RenderMode          mapview.RenderMode
}

// DefaultConfig returns the settings the service starts with.
func DefaultConfig() Config {
	return Config{
		Zoom:                15,
		MaxPointsOfInterest: 5,
		YourLocationTitle:   "Your location",
		Request:             locationsvc.DefaultRequest(),
		RenderMode:          mapview.RenderVector,
	}
}

// MapActivity owns the map view and its pin layer. Apart from the exported
// methods, everything runs on the main looper.
type MapActivity struct {
	cfg         Config
	main        *looper.Looper
	owner       *lifecycle.Registry
	mapView     *mapview.MapView
	pinLayer    *mapview.Layer
	viewModel   ViewModel
	locations   locationsvc.Client
	permissions *permission.Store

	subscription locationsvc.Subscription
	generation   uint64
	places       *livedata.LiveData[[]models.Place]
}

// New returns a map activity in the initialized state. Lifecycle events must
// be delivered through its methods.
func New(cfg Config, main *looper.Looper, vm ViewModel, locations locationsvc.Client, perms *permission.Store) *MapActivity {
	a := &MapActivity{
		cfg:         cfg,
		main:        main,
		owner:       lifecycle.NewRegistry(),
		mapView:     mapview.New(cfg.RenderMode),
		pinLayer:    mapview.NewLayer(),
		viewModel:   vm,
		locations:   locations,
		permissions: perms,
	}
	perms.SetResultHandler(func(code int, ps []permission.Permission, results []permission.Result) {
		main.Post(func() { a.onRequestPermissionsResult(code, ps, results) })
	})
	return a
}

// Launch creates, starts and resumes the activity. saved may carry state
// from a previous Finish.
func (a *MapActivity) Launch(ctx context.Context, saved mapview.Bundle) error {
	return a.sync(ctx, func() error {
		return errors.Join(a.onCreate(saved), a.onStart(), a.onResume())
	})
}

// Finish walks the activity down to destroyed from whatever state it is in
// and returns its saved state.
func (a *MapActivity) Finish(ctx context.Context) (mapview.Bundle, error) {
	out := mapview.Bundle{}
	err := a.sync(ctx, func() error {
		if a.owner.State() == lifecycle.Resumed {
			if err := a.onPause(); err != nil {
				return err
			}
		}
		if lifecycle.IsActive(a.owner.State()) {
			if err := a.onStop(); err != nil {
				return err
			}
		}
		a.onSaveInstanceState(out)
		return a.onDestroy()
	})
	return out, err
}

// Background moves a resumed activity to stopped.
func (a *MapActivity) Background(ctx context.Context) error {
	return a.sync(ctx, func() error {
		if err := a.onPause(); err != nil {
			return err
		}
		return a.onStop()
	})
}

// Foreground moves a stopped activity back to resumed.
func (a *MapActivity) Foreground(ctx context.Context) error {
	return a.sync(ctx, func() error {
		if err := a.onStart(); err != nil {
			return err
		}
		return a.onResume()
	})
}

// LowMemory forwards a low-memory signal to the map view.
func (a *MapActivity) LowMemory(ctx context.Context) error {
	return a.sync(ctx, func() error {
		a.mapView.OnLowMemory()
		return nil
	})
}

// State reports the activity lifecycle state.
func (a *MapActivity) State(ctx context.Context) (lifecycle.State, error) {
	var state lifecycle.State
	err := a.sync(ctx, func() error {
		state = a.owner.State()
		return nil
	})
	return state, err
}

// Snapshot reads the map view state on the main looper.
func (a *MapActivity) Snapshot(ctx context.Context) (mapview.Snapshot, error) {
	var snap mapview.Snapshot
	err := a.sync(ctx, func() error {
		snap = a.mapView.Snapshot()
		return nil
	})
	return snap, err
}

// PinIcon returns the PNG icon of pin i.
func (a *MapActivity) PinIcon(ctx context.Context, i int) ([]byte, error) {
	var data []byte
	err := a.sync(ctx, func() error {
		var err error
		data, err = a.mapView.IconPNG(i)
		return err
	})
	return data, err
}

func (a *MapActivity) sync(ctx context.Context, fn func() error) error {
	var err error
	if serr := a.main.Sync(ctx, func() { err = fn() }); serr != nil {
		return serr
	}
	return err
}

func (a *MapActivity) onCreate(saved mapview.Bundle) error {
	if err := a.owner.Handle(lifecycle.OnCreate); err != nil {
		return err
	}
	a.initMapView()
	return a.mapView.OnCreate(saved)
}

func (a *MapActivity) onStart() error {
	if err := a.owner.Handle(lifecycle.OnStart); err != nil {
		return err
	}
	a.setLastLocation()
	return a.mapView.OnStart()
}

func (a *MapActivity) onResume() error {
	if err := a.owner.Handle(lifecycle.OnResume); err != nil {
		return err
	}
	a.startLocationUpdates()
	return a.mapView.OnResume()
}

func (a *MapActivity) onPause() error {
	if err := a.owner.Handle(lifecycle.OnPause); err != nil {
		return err
	}
	a.stopLocationUpdates()
	return a.mapView.OnPause()
}

func (a *MapActivity) onStop() error {
	if err := a.owner.Handle(lifecycle.OnStop); err != nil {
		return err
	}
	return a.mapView.OnStop()
}

func (a *MapActivity) onDestroy() error {
	if err := a.owner.Handle(lifecycle.OnDestroy); err != nil {
		return err
	}
	a.viewModel.Close()
	return a.mapView.OnDestroy()
}

func (a *MapActivity) onSaveInstanceState(out mapview.Bundle) {
	a.mapView.OnSaveInstanceState(out)
}

func (a *MapActivity) onRequestPermissionsResult(code int, _ []permission.Permission, results []permission.Result) {
	if code != LocationPermissionRequestCode {
		return
	}
	if len(results) < 2 || results[0] != permission.Granted || results[1] != permission.Granted {
		log.Println("Location permission denied")
		return
	}
	if a.owner.State() == lifecycle.Destroyed {
		return
	}
	a.setLastLocation()
	if a.owner.State() == lifecycle.Resumed {
		a.startLocationUpdates()
	}
}

func (a *MapActivity) initMapView() {
	a.mapView.SetCredentialsKey(a.cfg.CredentialsKey)
	a.mapView.AddLayer(a.pinLayer)
}

// hasLocationPermission requests both location permissions when neither is
// granted.
func (a *MapActivity) hasLocationPermission() bool {
	if a.permissions.Check(permission.AccessFineLocation) != permission.Granted &&
		a.permissions.Check(permission.AccessCoarseLocation) != permission.Granted {
		a.permissions.Request(locationPermissions, LocationPermissionRequestCode)
		return false
	}
	return true
}

func (a *MapActivity) setLastLocation() {
	if !a.hasLocationPermission() {
		return
	}
	a.locations.LastLocation(func(fix *models.Fix) {
		if fix == nil || a.owner.State() == lifecycle.Destroyed {
			return
		}
		a.onLocationUpdated(fix.Location())
	})
}

func (a *MapActivity) startLocationUpdates() {
	if a.subscription != nil || !a.hasLocationPermission() {
		return
	}
	sub, err := a.locations.RequestUpdates(a.cfg.Request, a.onLocationResult)
	if err != nil {
		log.Printf("Failed to request location updates: %v", err)
		return
	}
	a.subscription = sub
}

func (a *MapActivity) stopLocationUpdates() {
	if a.subscription == nil {
		return
	}
	a.subscription.Remove()
	a.subscription = nil
}

func (a *MapActivity) onLocationResult(result locationsvc.Result) {
	last := result.LastLocation()
	if last == nil {
		log.Println("Location information isn't available.")
		return
	}
	a.onLocationUpdated(last.Location())
}

func (a *MapActivity) onLocationUpdated(current models.Location) {
	a.generation++
	generation := a.generation
	if a.places != nil {
		a.places.RemoveObservers(a.owner)
	}

	a.pinLayer.Clear()
	a.mapView.SetScene(mapview.SceneFromLocationAndZoom(current, a.cfg.Zoom), mapview.AnimationDefault)
	a.addCurrentLocationPin(current)

	a.places = a.viewModel.PointsOfInterest(current.String())
	a.places.Observe(a.owner, func(points []models.Place) {
		if generation != a.generation {
			return
		}
		a.addPointsOfInterestPins(points)
	})
}

func (a *MapActivity) addCurrentLocationPin(loc models.Location) {
	a.pinLayer.Add(&mapview.Pin{Location: loc, Title: a.cfg.YourLocationTitle})
}

func (a *MapActivity) addPointsOfInterestPins(points []models.Place) {
	if len(points) > a.cfg.MaxPointsOfInterest {
		points = points[:a.cfg.MaxPointsOfInterest]
	}
	for _, point := range points {
		pin := &mapview.Pin{Location: point.Geometry.Location, Title: point.Name}
		a.viewModel.BitmapFromURL(point.Icon).Observe(a.owner, func(img image.Image) {
			if img != nil {
				pin.Image = img
			}
		})
		a.pinLayer.Add(pin)
	}
}
