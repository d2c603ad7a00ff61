package data

import (
	"image"
	"math"
	"math/rand"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Augmenter applies a random shear, zoom and horizontal flip to an image,
// the training-time augmentation of the classifier head. Areas mapped from
// outside the source are left black.
type Augmenter struct {
	Shear          float64 // maximum shear angle in radians
	Zoom           float64 // zoom factors are drawn from [1-Zoom, 1+Zoom]
	HorizontalFlip bool
	Rand           *rand.Rand
}

// Apply returns a transformed copy of img.
func (a *Augmenter) Apply(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	shear := a.uniform(-a.Shear, a.Shear)
	zx := a.uniform(1-a.Zoom, 1+a.Zoom)
	zy := a.uniform(1-a.Zoom, 1+a.Zoom)

	dst := image.NewRGBA(b)
	if m, ok := affine(b, shear, zx, zy); ok {
		draw.ApproxBiLinear.Transform(dst, m, img, b, draw.Src, nil)
	} else {
		draw.Copy(dst, b.Min, img, b, draw.Src, nil)
	}
	if a.HorizontalFlip && a.Rand.Float64() < 0.5 {
		flipHorizontal(dst)
	}
	return dst
}

func (a *Augmenter) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + a.Rand.Float64()*(hi-lo)
}

// affine builds the source-to-destination transform for an output whose
// pixel p samples the input at c + S·Z·(p - c), S shearing along x by
// angle shear and Z scaling by (zx, zy) around the center c.
func affine(b image.Rectangle, shear, zx, zy float64) (f64.Aff3, bool) {
	sin, cos := math.Sincos(shear)
	// S·Z = [[zx, -sin*zy], [0, cos*zy]]
	a00, a01, a11 := zx, -sin*zy, cos*zy
	det := a00 * a11
	if math.Abs(det) < 1e-12 {
		return f64.Aff3{}, false
	}
	i00, i01, i11 := a11/det, -a01/det, a00/det
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	return f64.Aff3{
		i00, i01, cx - i00*cx - i01*cy,
		0, i11, cy - i11*cy,
	}, true
}

func flipHorizontal(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for l, r := b.Min.X, b.Max.X-1; l < r; l, r = l+1, r-1 {
			lo, ro := img.PixOffset(l, y), img.PixOffset(r, y)
			for k := 0; k < 4; k++ {
				img.Pix[lo+k], img.Pix[ro+k] = img.Pix[ro+k], img.Pix[lo+k]
			}
		}
	}
}
