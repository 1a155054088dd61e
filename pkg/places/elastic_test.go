package places

import (
	"encoding/json"
	"testing"

	"poimap/internal/models"
)

func TestPlaceFromSource(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    string
		lat     float64
		lng     float64
		wantErr bool
	}{
		{name: "maps lon to lng", src: `{"name":"Library","icon":"http://x/i.png","location":{"lat":1.25,"lon":2.5}}`, want: "Library", lat: 1.25, lng: 2.5},
		{name: "rejects bad source", src: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := placeFromSource(json.RawMessage(tt.src))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Name != tt.want || got.Geometry.Location.Lat != tt.lat || got.Geometry.Location.Lng != tt.lng {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	p := models.Place{
		Geometry: models.Geometry{Location: models.Location{Lat: 47.6, Lng: -122.3}},
		Name:     "Pier",
		Icon:     "https://example.com/pier.png",
	}
	src, err := json.Marshal(documentFromPlace(p))
	if err != nil {
		t.Fatal(err)
	}
	got, err := placeFromSource(src)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != p.Name || got.Icon != p.Icon || got.Geometry.Location != p.Geometry.Location {
		t.Errorf("got %+v, want %+v", got, p)
	}
}

func TestDocumentID(t *testing.T) {
	a := models.Place{Name: "Pier", Geometry: models.Geometry{Location: models.Location{Lat: 1, Lng: 2}}}
	b := a
	c := a
	c.Geometry.Location.Lng = 3

	if documentID(a) != documentID(b) {
		t.Error("same place produced different ids")
	}
	if documentID(a) == documentID(c) {
		t.Error("places at different locations share an id")
	}
}
