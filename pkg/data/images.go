package data

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"predkit/pkg/core"
)

var ErrNoImages = errors.New("data: no images found")

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// ImageFile is one image of a class-per-subdirectory tree.
type ImageFile struct {
	Path  string
	ID    string // file name up to the first '.'
	Class int    // index of the subdirectory among the sorted classes
}

// ListImages walks dir the way a flow-from-directory generator does:
// subdirectories in sorted order form the classes, and each contributes
// its image files in sorted order. Other files are ignored.
func ListImages(dir string) ([]ImageFile, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	var classes []string
	for _, e := range entries {
		if e.IsDir() {
			classes = append(classes, e.Name())
		}
	}
	sort.Strings(classes)

	var files []ImageFile
	for ci, class := range classes {
		sub := filepath.Join(dir, class)
		names, err := os.ReadDir(sub)
		if err != nil {
			return nil, nil, err
		}
		var images []string
		for _, n := range names {
			if n.IsDir() || !imageExts[strings.ToLower(filepath.Ext(n.Name()))] {
				continue
			}
			images = append(images, n.Name())
		}
		sort.Strings(images)
		for _, name := range images {
			id, _, _ := strings.Cut(name, ".")
			files = append(files, ImageFile{Path: filepath.Join(sub, name), ID: id, Class: ci})
		}
	}
	if len(files) == 0 {
		return nil, classes, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	return files, classes, nil
}

// Interpolator returns the resampling kernel for name: "nearest" (the
// default), "bilinear", "approx-bilinear" or "catmullrom".
func Interpolator(name string) (draw.Interpolator, error) {
	switch name {
	case "", "nearest":
		return draw.NearestNeighbor, nil
	case "bilinear":
		return draw.BiLinear, nil
	case "approx-bilinear":
		return draw.ApproxBiLinear, nil
	case "catmullrom":
		return draw.CatmullRom, nil
	}
	return nil, fmt.Errorf("data: unknown interpolation %q", name)
}

// LoadOptions controls how an image file becomes a tensor.
type LoadOptions struct {
	Width, Height int
	Interp        string
	// Rescale multiplies every 8-bit channel value; 1/255 maps to [0, 1].
	Rescale float64
	// Augment, when set, randomly transforms each image after resizing.
	Augment *Augmenter
}

// LoadImage decodes path, resizes it to Width×Height and returns an RGB
// channel-first tensor.
func LoadImage(path string, opts LoadOptions) (*core.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("data: decode %s: %w", path, err)
	}
	interp, err := Interpolator(opts.Interp)
	if err != nil {
		return nil, err
	}
	img := Resize(src, opts.Width, opts.Height, interp)
	if opts.Augment != nil {
		img = opts.Augment.Apply(img)
	}
	return ToTensor(img, opts.Rescale), nil
}

// Resize scales src to exactly w×h.
func Resize(src image.Image, w, h int, interp draw.Interpolator) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	interp.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// ToTensor lays out the RGB channels of img as a 3×H×W tensor, scaling
// 8-bit values by scale (1 when scale is 0).
func ToTensor(img *image.RGBA, scale float64) *core.Tensor {
	if scale == 0 {
		scale = 1
	}
	b := img.Bounds()
	t := core.NewTensor(3, b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			t.Set(0, y, x, float64(img.Pix[off])*scale)
			t.Set(1, y, x, float64(img.Pix[off+1])*scale)
			t.Set(2, y, x, float64(img.Pix[off+2])*scale)
		}
	}
	return t
}
