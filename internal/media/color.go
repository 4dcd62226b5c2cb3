package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

// decodeSlots bounds full image decodes. A decode abandoned by its caller
// keeps its slot until it finishes.
var decodeSlots = semaphore.NewWeighted(2)

// ColorResolver computes a representative display color for an image.
type ColorResolver interface {
	Resolve(ctx context.Context, uri string) (string, error)
}

// ImagingResolver averages the decoded image down to a single pixel.
type ImagingResolver struct{}

// Resolve returns the image's average color as "#rrggbb".
func (ImagingResolver) Resolve(ctx context.Context, uri string) (string, error) {
	p, err := LocalPath(uri)
	if err != nil {
		return "", err
	}
	if err := decodeSlots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	type result struct {
		color string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer decodeSlots.Release(1)
		img, err := imaging.Open(p)
		if err != nil {
			done <- result{err: fmt.Errorf("decode image: %w", err)}
			return
		}
		done <- result{color: averageColor(img)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.color, r.err
	}
}

func averageColor(img image.Image) string {
	px := imaging.Resize(img, 1, 1, imaging.Box)
	c := px.NRGBAAt(0, 0)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// FallbackColor derives a stable hsl() color from the URI.
func FallbackColor(uri string) string {
	var hash int32
	for _, u := range utf16Units(uri) {
		hash = (hash << 5) - hash + int32(u)
	}
	hue := abs(hash) % 360
	saturation := 55 + abs(hash>>3)%20
	lightness := 48 + abs(hash>>6)%16
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, saturation, lightness)
}

func abs(v int32) int64 {
	x := int64(v)
	if x < 0 {
		return -x
	}
	return x
}

// utf16Units yields the UTF-16 code units of s so hashes match across platforms.
func utf16Units(s string) []uint16 {
	out := make([]uint16, 0, len(s))
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
			continue
		}
		out = append(out, uint16(r))
	}
	return out
}

// ColorOrFallback asks the resolver for a color, bounded by timeout, and falls
// back to FallbackColor on any failure. It never fails.
func ColorOrFallback(ctx context.Context, r ColorResolver, uri string, timeout time.Duration, log *zap.Logger) string {
	fallback := FallbackColor(uri)
	if r == nil {
		return fallback
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	c, err := r.Resolve(ctx, uri)
	if err != nil || c == "" {
		if log != nil {
			log.Warn("dominant color unavailable, using fallback",
				zap.String("uri", uri), zap.Error(err))
		}
		return fallback
	}
	return c
}
