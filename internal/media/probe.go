package media

import (
	"image"
	"os"

	"github.com/4tyam/everyday/internal/model"
)

// Probe reads the pixel dimensions from the image header. Unknown or
// unreadable images yield nil dimensions.
func Probe(uri string) (width, height *int) {
	p, err := LocalPath(uri)
	if err != nil {
		return nil, nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, nil
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, nil
	}
	return &cfg.Width, &cfg.Height
}

// SourceAsset describes a local image file as picker output.
func SourceAsset(uri string) model.SourceAsset {
	w, h := Probe(uri)
	return model.SourceAsset{URI: uri, Width: w, Height: h}
}
