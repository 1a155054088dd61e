package viewmodel

import (
	"image"
	"image/color"
	"math"
	"sync"
)

const placeholderSize = 32

var starColor = color.RGBA{R: 0xFF, G: 0xC1, B: 0x07, A: 0xFF}

// Placeholder returns the bundled star icon used when a place icon cannot be
// fetched or decoded.
var Placeholder = sync.OnceValue(drawStar)

func drawStar() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
	star := starPolygon(placeholderSize/2, placeholderSize/2, placeholderSize/2-1, placeholderSize/5)
	for y := 0; y < placeholderSize; y++ {
		for x := 0; x < placeholderSize; x++ {
			if insidePolygon(float64(x)+0.5, float64(y)+0.5, star) {
				img.SetRGBA(x, y, starColor)
			}
		}
	}
	return img
}

type point struct{ x, y float64 }

func starPolygon(cx, cy, outer, inner float64) []point {
	pts := make([]point, 0, 10)
	for i := 0; i < 10; i++ {
		r := outer
		if i%2 == 1 {
			r = inner
		}
		angle := -math.Pi/2 + float64(i)*math.Pi/5
		pts = append(pts, point{x: cx + r*math.Cos(angle), y: cy + r*math.Sin(angle)})
	}
	return pts
}

// insidePolygon is a standard even-odd ray cast.
func insidePolygon(x, y float64, poly []point) bool {
	inside := false
	j := len(poly) - 1
	for i := range poly {
		pi, pj := poly[i], poly[j]
		if (pi.y > y) != (pj.y > y) && x < (pj.x-pi.x)*(y-pi.y)/(pj.y-pi.y)+pi.x {
			inside = !inside
		}
		j = i
	}
	return inside
}
