package hsi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"
)

// CompressedExt marks zstd-compressed scene files.
const CompressedExt = ".zst"

// SceneData is the JSON form of a Scene. Image is stored row-major
// (bands × pixels).
type SceneData struct {
	Name        string    `json:"name"`
	Bands       int       `json:"bands"`
	Pixels      int       `json:"pixels"`
	Height      int       `json:"height,omitempty"`
	Width       int       `json:"width,omitempty"`
	Image       []float64 `json:"image"`
	Target      []float64 `json:"target"`
	GroundTruth []float64 `json:"groundtruth,omitempty"`
}

func ToSceneData(s *Scene) SceneData {
	bands, pixels := s.Image.Dims()
	image := make([]float64, 0, bands*pixels)
	for i := range bands {
		image = append(image, mat.Row(nil, i, s.Image)...)
	}
	return SceneData{
		Name:        s.Name,
		Bands:       bands,
		Pixels:      pixels,
		Height:      s.Height,
		Width:       s.Width,
		Image:       image,
		Target:      s.Target,
		GroundTruth: s.GroundTruth,
	}
}

// Scene checks the data and builds a Scene. A missing grid shape defaults to a
// single image column.
func (d SceneData) Scene() (*Scene, error) {
	if d.Bands <= 0 || d.Pixels <= 0 {
		return nil, fmt.Errorf("scene %q: need positive bands and pixels, got %dx%d", d.Name, d.Bands, d.Pixels)
	}
	if len(d.Image) != d.Bands*d.Pixels {
		return nil, fmt.Errorf("scene %q: image has %d values, want %d", d.Name, len(d.Image), d.Bands*d.Pixels)
	}

	height, width := d.Height, d.Width
	if height == 0 && width == 0 {
		height, width = d.Pixels, 1
	}

	s := &Scene{
		Name:        d.Name,
		Image:       mat.NewDense(d.Bands, d.Pixels, append([]float64(nil), d.Image...)),
		Target:      d.Target,
		GroundTruth: d.GroundTruth,
		Height:      height,
		Width:       width,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads a scene file, decompressing it when the name ends in .zst.
func Load(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}

	if strings.HasSuffix(path, CompressedExt) {
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer decoder.Close()

		raw, err = decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress scene %s: %w", path, err)
		}
	}

	var data SceneData
	if err := sonic.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode scene %s: %w", path, err)
	}
	if data.Name == "" {
		data.Name = sceneName(path)
	}
	return data.Scene()
}

// Save writes a scene file, compressing it when the name ends in .zst.
func Save(path string, s *Scene) error {
	if err := s.Validate(); err != nil {
		return err
	}

	raw, err := sonic.Marshal(ToSceneData(s))
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}

	if strings.HasSuffix(path, CompressedExt) {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		raw = encoder.EncodeAll(raw, nil)
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("close zstd encoder: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create scene dir: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// sceneName strips directory and extensions: /data/san.json.zst -> san.
func sceneName(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name
}
