package datasets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"strconv"
	"strings"
	"unicode/utf8"

	// Formats accepted by DecodeImage.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Sample is whatever the decode and transform hooks produce. The default
// image decoder yields *Raster and the default text decoder yields string.
type Sample = any

// Label is whatever the target hook produces. The default yields int.
type Label = any

// DecodeFunc turns fetched payload bytes into a sample.
type DecodeFunc func(raw []byte) (Sample, error)

// TransformFunc post-processes a decoded sample.
type TransformFunc func(Sample) (Sample, error)

// TargetFunc extracts the label from a record's annotation.
type TargetFunc func(annotation json.RawMessage) (Label, error)

// DecodeImage decodes any registered image format (jpeg, png, gif, bmp,
// tiff, webp) into an RGB *Raster.
func DecodeImage(raw []byte) (Sample, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return NewRaster(img), nil
}

// DecodeText returns the payload as a string. It must be valid UTF-8.
func DecodeText(raw []byte) (Sample, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: payload is not valid utf-8", ErrDecode)
	}
	return string(raw), nil
}

// TargetLabel is the default label extractor. It expects the annotation
// layout produced by the labeling platform,
//
//	{"Result": [{"Data": [{"Label": 3}]}]}
//
// and returns the first result's first label as an int. Numbers are
// truncated and numeric strings are parsed. Datasets annotated with another
// schema must supply their own TargetFunc.
func TargetLabel(annotation json.RawMessage) (Label, error) {
	var doc struct {
		Result []struct {
			Data []struct {
				Label json.RawMessage `json:"Label"`
			} `json:"Data"`
		} `json:"Result"`
	}
	if err := json.Unmarshal(annotation, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLabel, err)
	}
	if len(doc.Result) == 0 {
		return nil, fmt.Errorf("%w: annotation has no Result", ErrLabel)
	}
	if len(doc.Result[0].Data) == 0 {
		return nil, fmt.Errorf("%w: Result[0] has no Data", ErrLabel)
	}
	raw := doc.Result[0].Data[0].Label
	if raw == nil || string(raw) == "null" {
		return nil, fmt.Errorf("%w: Result[0].Data[0] has no Label", ErrLabel)
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return int(num), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: label %s is neither a number nor a string", ErrLabel, raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: label %q is not an integer", ErrLabel, s)
	}
	return n, nil
}
