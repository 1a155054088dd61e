package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fix is a single reading from the location service.
type Fix struct {
	ID        string    `json:"id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"` // metres
	Timestamp time.Time `json:"timestamp"`
}

func (f Fix) Location() Location {
	return Location{Lat: f.Latitude, Lng: f.Longitude}
}

// Validate reports whether the coordinates are within WGS84 bounds.
func (f Fix) Validate() error {
	if f.Latitude < -90 || f.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", f.Latitude)
	}
	if f.Longitude < -180 || f.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", f.Longitude)
	}
	if f.Accuracy < 0 {
		return fmt.Errorf("negative accuracy %v", f.Accuracy)
	}
	return nil
}

// DecodeFix parses a JSON encoded fix and validates it.
func DecodeFix(data []byte) (Fix, error) {
	var fix Fix
	if err := json.Unmarshal(data, &fix); err != nil {
		return Fix{}, fmt.Errorf("failed to decode fix: %w", err)
	}
	if err := fix.Validate(); err != nil {
		return Fix{}, err
	}
	return fix, nil
}
