// Package mapview models the map widget: its scene, pin layers, saved state
// and the lifecycle calls it receives from the owning activity.
package mapview

import (
	"bytes"
	"fmt"
	"image/png"
	"log"

	"poimap/internal/lifecycle"
	"poimap/internal/models"
	"poimap/pkg/geo"
)

// RenderMode selects how the map draws.
type RenderMode int

const (
	RenderVector RenderMode = iota
	RenderRaster
)

// AnimationKind controls how a scene change is shown.
type AnimationKind int

const (
	AnimationDefault AnimationKind = iota
	AnimationLinear
	AnimationBow
	AnimationNone
)

// Scene is what the camera shows.
type Scene struct {
	Center models.Location `json:"center"`
	Zoom   float64         `json:"zoom"`
}

func SceneFromLocationAndZoom(loc models.Location, zoom float64) Scene {
	return Scene{Center: loc, Zoom: zoom}
}

// Bundle carries saved instance state between a destroyed and a recreated view.
type Bundle map[string]any

const sceneStateKey = "mapview.scene"

// MapView holds the map scene and layers. It is used on the main looper only.
type MapView struct {
	renderMode     RenderMode
	credentialsKey string
	layers         []*Layer
	scene          Scene
	animation      AnimationKind
	lifecycle      *lifecycle.Registry
	iconCache      map[*Pin][]byte
}

// New returns a map view that has not been created yet.
func New(mode RenderMode) *MapView {
	return &MapView{
		renderMode: mode,
		lifecycle:  lifecycle.NewRegistry(),
		iconCache:  make(map[*Pin][]byte),
	}
}

func (m *MapView) SetCredentialsKey(key string) {
	m.credentialsKey = key
}

func (m *MapView) CredentialsKey() string {
	return m.credentialsKey
}

func (m *MapView) AddLayer(l *Layer) {
	m.layers = append(m.layers, l)
}

func (m *MapView) Layers() []*Layer {
	return append([]*Layer(nil), m.layers...)
}

// SetScene moves the camera.
func (m *MapView) SetScene(s Scene, animation AnimationKind) {
	m.scene = s
	m.animation = animation
}

func (m *MapView) Scene() Scene {
	return m.scene
}

func (m *MapView) State() lifecycle.State {
	return m.lifecycle.State()
}

// OnCreate restores the camera from saved when present.
func (m *MapView) OnCreate(saved Bundle) error {
	if err := m.lifecycle.Handle(lifecycle.OnCreate); err != nil {
		return err
	}
	if m.credentialsKey == "" {
		log.Println("MapView created without a credentials key")
	}
	if s, ok := saved[sceneStateKey].(Scene); ok {
		m.scene = s
	}
	return nil
}

func (m *MapView) OnStart() error {
	return m.lifecycle.Handle(lifecycle.OnStart)
}

func (m *MapView) OnResume() error {
	return m.lifecycle.Handle(lifecycle.OnResume)
}

func (m *MapView) OnPause() error {
	return m.lifecycle.Handle(lifecycle.OnPause)
}

func (m *MapView) OnStop() error {
	return m.lifecycle.Handle(lifecycle.OnStop)
}

func (m *MapView) OnDestroy() error {
	if err := m.lifecycle.Handle(lifecycle.OnDestroy); err != nil {
		return err
	}
	m.iconCache = make(map[*Pin][]byte)
	return nil
}

// OnSaveInstanceState writes the camera into out.
func (m *MapView) OnSaveInstanceState(out Bundle) {
	out[sceneStateKey] = m.scene
}

// OnLowMemory drops encoded icons; they are rebuilt on demand.
func (m *MapView) OnLowMemory() {
	log.Printf("MapView low memory, dropping %d encoded icons", len(m.iconCache))
	m.iconCache = make(map[*Pin][]byte)
}

// PinSnapshot is a read-only view of one pin.
type PinSnapshot struct {
	Title     string  `json:"title"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Distance  float64 `json:"distance_m"`
	HasIcon   bool    `json:"has_icon"`
}

// Snapshot is a copy of the view state safe to read off the main looper.
type Snapshot struct {
	Scene Scene         `json:"scene"`
	Pins  []PinSnapshot `json:"pins"`
}

// Snapshot summarises the scene and every pin of every layer, with the
// distance of each pin from the scene centre.
func (m *MapView) Snapshot() Snapshot {
	snap := Snapshot{Scene: m.scene, Pins: []PinSnapshot{}}
	for _, p := range m.pins() {
		snap.Pins = append(snap.Pins, PinSnapshot{
			Title:     p.Title,
			Latitude:  p.Location.Lat,
			Longitude: p.Location.Lng,
			Distance:  geo.Distance(m.scene.Center.Lat, m.scene.Center.Lng, p.Location.Lat, p.Location.Lng),
			HasIcon:   p.Image != nil,
		})
	}
	return snap
}

// IconPNG returns the PNG encoding of the icon of pin i, counting across
// layers in order.
func (m *MapView) IconPNG(i int) ([]byte, error) {
	pins := m.pins()
	if i < 0 || i >= len(pins) {
		return nil, fmt.Errorf("pin %d out of range [0,%d)", i, len(pins))
	}
	p := pins[i]
	if p.Image == nil {
		return nil, fmt.Errorf("pin %d has no icon", i)
	}
	if data, ok := m.iconCache[p]; ok {
		return data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image); err != nil {
		return nil, fmt.Errorf("failed to encode icon: %w", err)
	}
	m.pruneIcons(pins)
	m.iconCache[p] = buf.Bytes()
	return buf.Bytes(), nil
}

func (m *MapView) pins() []*Pin {
	var all []*Pin
	for _, l := range m.layers {
		all = append(all, l.elements...)
	}
	return all
}

// pruneIcons forgets encodings of pins that are no longer on any layer.
func (m *MapView) pruneIcons(current []*Pin) {
	live := make(map[*Pin]struct{}, len(current))
	for _, p := range current {
		live[p] = struct{}{}
	}
	for p := range m.iconCache {
		if _, ok := live[p]; !ok {
			delete(m.iconCache, p)
		}
	}
}
