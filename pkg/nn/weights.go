package nn

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/sbinet/npyio/npz"
)

var ErrWeightsNotFound = errors.New("nn: model weights not found")

// archiveKey names parameter p of layer k inside a weight archive.
func archiveKey(k, p int) string { return fmt.Sprintf("layer_%d/param_%d", k, p) }

// parseKey splits "layer_<k>/param_<p>" (optionally ending in ".npy").
func parseKey(key string) (k, p int, ok bool) {
	key = strings.TrimSuffix(key, ".npy")
	layer, param, found := strings.Cut(key, "/")
	if !found || !strings.HasPrefix(layer, "layer_") || !strings.HasPrefix(param, "param_") {
		return 0, 0, false
	}
	k, err1 := strconv.Atoi(strings.TrimPrefix(layer, "layer_"))
	p, err2 := strconv.Atoi(strings.TrimPrefix(param, "param_"))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return k, p, true
}

// LoadWeights fills the model from an .npz archive laid out as
// layer_<k>/param_<p>. Archive layers are visited in order and loading
// stops at the first index past the end of the model, so a full-network
// archive can initialize a truncated model. It returns the number of
// archive layers consumed.
func LoadWeights(path string, s *Sequential) (int, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrWeightsNotFound, path)
		}
		return 0, err
	}
	r, err := npz.Open(path)
	if err != nil {
		return 0, fmt.Errorf("nn: open %s: %w", path, err)
	}
	defer r.Close()

	groups := map[int]map[int]string{}
	nLayers := 0
	for _, key := range r.Keys() {
		k, p, ok := parseKey(key)
		if !ok {
			continue
		}
		if groups[k] == nil {
			groups[k] = map[int]string{}
		}
		groups[k][p] = key
		nLayers = max(nLayers, k+1)
	}

	layers := s.Layers()
	loaded := 0
	for k := 0; k < nLayers; k++ {
		if k >= len(layers) {
			break
		}
		keys := groups[k]
		pl, parametric := layers[k].(Parametric)
		if !parametric {
			if len(keys) > 0 {
				return loaded, fmt.Errorf("%w: archive layer %d has %d params, model layer %s has none", ErrShape, k, len(keys), layers[k].Name())
			}
			loaded++
			continue
		}
		if len(keys) != len(pl.Weights()) {
			return loaded, fmt.Errorf("%w: archive layer %d has %d params, model layer %s wants %d", ErrShape, k, len(keys), pl.Name(), len(pl.Weights()))
		}
		params := make([][]float64, len(keys))
		for p := range params {
			key, ok := keys[p]
			if !ok {
				return loaded, fmt.Errorf("%w: archive layer %d lacks param %d", ErrShape, k, p)
			}
			if params[p], err = readFloats(r, key); err != nil {
				return loaded, fmt.Errorf("nn: read %s: %w", key, err)
			}
		}
		if err := pl.SetWeights(params); err != nil {
			return loaded, fmt.Errorf("layer %d: %w", k, err)
		}
		loaded++
	}
	return loaded, nil
}

// readFloats reads an array stored as float64 or float32.
func readFloats(r *npz.Reader, key string) ([]float64, error) {
	var f64 []float64
	if err := r.Read(key, &f64); err == nil {
		return f64, nil
	}
	var f32 []float32
	if err := r.Read(key, &f32); err != nil {
		return nil, err
	}
	out := make([]float64, len(f32))
	for i, v := range f32 {
		out[i] = float64(v)
	}
	return out, nil
}

// SaveWeights writes every layer of s to an .npz archive in the layout
// LoadWeights reads. Parameterless layers leave a gap in the numbering.
func SaveWeights(path string, s *Sequential) error {
	w, err := npz.Create(path)
	if err != nil {
		return err
	}
	for k, l := range s.Layers() {
		p, ok := l.(Parametric)
		if !ok {
			continue
		}
		for i, arr := range p.Weights() {
			if err := w.Write(archiveKey(k, i), arr); err != nil {
				w.Close()
				return fmt.Errorf("nn: write layer %d: %w", k, err)
			}
		}
	}
	return w.Close()
}
