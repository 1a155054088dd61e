package mapview

import (
	"image"

	"poimap/internal/models"
)

// Pin is a marker at a location with a title and an optional icon.
type Pin struct {
	Location models.Location
	Title    string
	Image    image.Image
}

// Layer is an ordered collection of pins. It is not synchronised: it must
// only be touched on the main looper.
type Layer struct {
	elements []*Pin
}

func NewLayer() *Layer {
	return &Layer{}
}

func (l *Layer) Add(p *Pin) {
	l.elements = append(l.elements, p)
}

func (l *Layer) Clear() {
	l.elements = nil
}

func (l *Layer) Len() int {
	return len(l.elements)
}

// Elements returns a copy of the pin list.
func (l *Layer) Elements() []*Pin {
	return append([]*Pin(nil), l.elements...)
}
