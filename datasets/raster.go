package datasets

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Raster is a decoded image in RGB, row-major, three bytes per pixel. Alpha
// is dropped without compositing.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRaster converts img to RGB.
func NewRaster(img image.Image) *Raster {
	b := img.Bounds()
	r := &Raster{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]uint8, 0, b.Dx()*b.Dy()*3),
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			r.Pix = append(r.Pix, c.R, c.G, c.B)
		}
	}
	return r
}

// RGB returns the pixel at (x, y).
func (r *Raster) RGB(x, y int) (uint8, uint8, uint8) {
	i := (y*r.Width + x) * 3
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// Floats returns the pixels scaled to [0, 1] as [height][width][3].
func (r *Raster) Floats() [][][]float32 {
	out := make([][][]float32, r.Height)
	for y := range r.Height {
		row := make([][]float32, r.Width)
		for x := range r.Width {
			i := (y*r.Width + x) * 3
			row[x] = []float32{
				float32(r.Pix[i]) / 255,
				float32(r.Pix[i+1]) / 255,
				float32(r.Pix[i+2]) / 255,
			}
		}
		out[y] = row
	}
	return out
}

// Tensor converts the raster into a gomlx tensor shaped [height, width, 3].
func (r *Raster) Tensor() *tensors.Tensor {
	return tensors.FromAnyValue(r.Floats())
}

// ImageBatchFlat stores a batch of equally sized rasters in one contiguous
// buffer laid out as [batch, height, width, 3].
type ImageBatchFlat struct {
	Pixels    []float32
	Labels    []int32
	BatchSize int
	Height    int
	Width     int
}

// MakeImageBatchFlat packs samples (which must be *Raster of equal size) and
// their int labels.
func MakeImageBatchFlat(samples []Sample, labels []Label) (*ImageBatchFlat, error) {
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("samples and labels batch sizes don't match: %d != %d", len(samples), len(labels))
	}
	if len(samples) == 0 {
		return &ImageBatchFlat{}, nil
	}

	first, ok := samples[0].(*Raster)
	if !ok {
		return nil, fmt.Errorf("sample 0 is %T, want *Raster", samples[0])
	}
	b := &ImageBatchFlat{
		BatchSize: len(samples),
		Height:    first.Height,
		Width:     first.Width,
		Pixels:    make([]float32, 0, len(samples)*first.Height*first.Width*3),
		Labels:    make([]int32, len(samples)),
	}
	for i, s := range samples {
		r, ok := s.(*Raster)
		if !ok {
			return nil, fmt.Errorf("sample %d is %T, want *Raster", i, s)
		}
		if r.Width != b.Width || r.Height != b.Height {
			return nil, fmt.Errorf("inconsistent raster size at example %d: expected %dx%d, got %dx%d",
				i, b.Width, b.Height, r.Width, r.Height)
		}
		for _, p := range r.Pix {
			b.Pixels = append(b.Pixels, float32(p)/255)
		}
		label, ok := labels[i].(int)
		if !ok {
			return nil, fmt.Errorf("label %d is %T, want int", i, labels[i])
		}
		b.Labels[i] = int32(label)
	}
	return b, nil
}

// ToGomlxTensors converts the batch to gomlx tensors: pixels shaped
// [batch, height, width, 3] and labels shaped [batch].
func (b *ImageBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.BatchSize == 0 {
		return tensors.FromAnyValue([][][][]float32{}), tensors.FromAnyValue([]int32{}), nil
	}
	images := make([][][][]float32, b.BatchSize)
	stride := b.Height * b.Width * 3
	for i := range b.BatchSize {
		flat := b.Pixels[i*stride : (i+1)*stride]
		img := make([][][]float32, b.Height)
		for y := range b.Height {
			row := make([][]float32, b.Width)
			for x := range b.Width {
				j := (y*b.Width + x) * 3
				row[x] = flat[j : j+3]
			}
			img[y] = row
		}
		images[i] = img
	}
	return tensors.FromAnyValue(images), tensors.FromAnyValue(b.Labels), nil
}
