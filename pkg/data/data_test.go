package data

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/draw"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestListImagesOrder(t *testing.T) {
	dir := t.TempDir()
	red := color.RGBA{R: 255, A: 255}
	for _, p := range []string{"dogs/2.png", "dogs/10.png", "cats/cat.7.png", "cats/1.png"} {
		writePNG(t, filepath.Join(dir, p), 2, 2, red)
	}
	if err := os.WriteFile(filepath.Join(dir, "cats", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, classes, err := ListImages(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(classes) != 2 || classes[0] != "cats" || classes[1] != "dogs" {
		t.Fatalf("classes = %v", classes)
	}
	want := []struct {
		id    string
		class int
	}{{"1", 0}, {"cat", 0}, {"10", 1}, {"2", 1}}
	if len(files) != len(want) {
		t.Fatalf("got %d files", len(files))
	}
	for i, w := range want {
		if files[i].ID != w.id || files[i].Class != w.class {
			t.Errorf("file %d = %+v, want id %s class %d", i, files[i], w.id, w.class)
		}
	}
}

func TestListImagesEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "test"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ListImages(dir); !errors.Is(err, ErrNoImages) {
		t.Errorf("got %v", err)
	}
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, path, 4, 2, color.RGBA{R: 255, B: 51, A: 255})
	x, err := LoadImage(path, LoadOptions{Width: 3, Height: 3, Rescale: 1.0 / 255})
	if err != nil {
		t.Fatal(err)
	}
	if x.C != 3 || x.H != 3 || x.W != 3 {
		t.Fatalf("shape %v", x.Shape)
	}
	for y := 0; y < 3; y++ {
		for xx := 0; xx < 3; xx++ {
			if math.Abs(x.At(0, y, xx)-1) > 1e-12 || x.At(1, y, xx) != 0 || math.Abs(x.At(2, y, xx)-0.2) > 1e-12 {
				t.Fatalf("pixel (%d,%d) = %v %v %v", y, xx, x.At(0, y, xx), x.At(1, y, xx), x.At(2, y, xx))
			}
		}
	}

	if _, err := LoadImage(path, LoadOptions{Width: 1, Height: 1, Interp: "lanczos"}); err == nil {
		t.Error("unknown interpolation should fail")
	}
}

func TestFlipHorizontal(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{R: 10, A: 255})
	img.Set(2, 0, color.RGBA{R: 30, A: 255})
	flipHorizontal(img)
	if r, _, _, _ := img.At(0, 0).RGBA(); r>>8 != 30 {
		t.Errorf("left = %d", r>>8)
	}
	if r, _, _, _ := img.At(2, 0).RGBA(); r>>8 != 10 {
		t.Errorf("right = %d", r>>8)
	}
}

func TestAffineIdentity(t *testing.T) {
	m, ok := affine(image.Rect(0, 0, 10, 6), 0, 1, 1)
	if !ok {
		t.Fatal("identity rejected")
	}
	want := [6]float64{1, 0, 0, 0, 1, 0}
	for i := range want {
		if math.Abs(m[i]-want[i]) > 1e-12 {
			t.Fatalf("m = %v", m)
		}
	}
}

func TestAugmenterKeepsBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	a := &Augmenter{Shear: 0.2, Zoom: 0.2, HorizontalFlip: true, Rand: rand.New(rand.NewSource(1))}
	out := a.Apply(img)
	if out.Bounds() != img.Bounds() {
		t.Errorf("bounds %v", out.Bounds())
	}
}

func TestStreamAndBatchPreserveOrder(t *testing.T) {
	dir := t.TempDir()
	var files []ImageFile
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, "test", string(rune('a'+i))+".png")
		writePNG(t, p, 2, 2, color.Gray{Y: uint8(i * 50)})
		files = append(files, ImageFile{Path: p, ID: string(rune('a' + i))})
	}

	ctx := context.Background()
	samples := make(chan Sample)
	batches := make(chan Batch)
	StreamImages(ctx, files, LoadOptions{Width: 2, Height: 2, Rescale: 1}, samples)
	Batcher(ctx, samples, 2, batches)

	var sizes []int
	next := 0
	for b := range batches {
		sizes = append(sizes, len(b.Samples))
		for _, s := range b.Samples {
			if s.Err != nil {
				t.Fatal(s.Err)
			}
			if s.Index != next || s.File.ID != files[next].ID {
				t.Fatalf("sample %d out of order (index %d)", next, s.Index)
			}
			if got := s.X.At(0, 0, 0); got != float64(next*50) {
				t.Errorf("sample %d value %v", next, got)
			}
			next++
		}
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v", sizes)
	}
}

func TestStreamStopsOnDecodeError(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	writePNG(t, good, 2, 2, color.White)
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	files := []ImageFile{{Path: good}, {Path: bad}, {Path: good}}

	samples := make(chan Sample)
	batches := make(chan Batch)
	StreamImages(context.Background(), files, LoadOptions{Width: 2, Height: 2}, samples)
	Batcher(context.Background(), samples, 8, batches)

	var got []Sample
	for b := range batches {
		got = append(got, b.Samples...)
	}
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}
	if got[0].Err != nil || got[1].Err == nil {
		t.Errorf("errors = %v, %v", got[0].Err, got[1].Err)
	}
}
