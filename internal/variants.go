package internal

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"sync"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WEBP decoder
)

// Variants are normalized to JPEG regardless of source format so storage and
// bandwidth stay predictable; only the untouched original keeps its format.
const variantQuality = 80

// DecodeImage decodes JPEG, PNG or WEBP bytes and returns the image with its
// pixel dimensions.
func DecodeImage(data []byte) (image.Image, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: decode failed: %v", ErrProcessing, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: image has no pixels", ErrProcessing)
	}
	return img, b.Dx(), b.Dy(), nil
}

// encodeVariant scales img down to at most maxWidth (never up) and encodes
// it as JPEG at the fixed variant quality.
func encodeVariant(img image.Image, maxWidth int) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w > maxWidth {
		scaledH := h * maxWidth / w
		if scaledH < 1 {
			scaledH = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, maxWidth, scaledH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
		img = scaled
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: variantQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode failed: %v", ErrProcessing, err)
	}
	return out.Bytes(), nil
}

// GenerateVariants decodes src once and writes one resized JPEG per ladder
// rung under "{keyBase}/{prefix}{rung}.jpg". Rungs are produced by parallel
// workers, but every write is awaited before the URL map is returned, so a
// caller holding the map holds confirmed writes only. Any failure aborts the
// whole ladder.
func (app *App) GenerateVariants(ctx context.Context, keyBase, prefix string, src []byte) (map[string]string, int, int, error) {
	img, width, height, err := DecodeImage(src)
	if err != nil {
		return nil, 0, 0, err
	}

	// Rung failures cancel the remaining rungs; the first error wins.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	urls := make([]string, len(VariantLadder))
	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	for i, spec := range VariantLadder {
		wg.Add(1)
		go func(i int, spec VariantSpec) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			default:
			}

			encodeStart := time.Now()
			data, err := encodeVariant(img, spec.MaxWidth)
			if err != nil {
				select {
				case errChan <- fmt.Errorf("variant %s: %w", spec.Name, err):
				default:
				}
				cancel()
				return
			}
			VariantEncodeDuration.WithLabelValues(spec.Name).Observe(time.Since(encodeStart).Seconds())

			key := fmt.Sprintf("%s/%s%s.jpg", keyBase, prefix, spec.Name)
			saveStart := time.Now()
			url, err := app.Storage.Save(ctx, key, bytes.NewReader(data), int64(len(data)), "image/jpeg")
			if err != nil {
				select {
				case errChan <- fmt.Errorf("variant %s: %w", spec.Name, err):
				default:
				}
				cancel()
				return
			}
			StorageOpDuration.WithLabelValues("save").Observe(time.Since(saveStart).Seconds())

			urls[i] = url
		}(i, spec)
	}

	wg.Wait()

	select {
	case err := <-errChan:
		return nil, 0, 0, err
	default:
	}

	result := make(map[string]string, len(VariantLadder))
	for i, spec := range VariantLadder {
		if urls[i] == "" {
			return nil, 0, 0, fmt.Errorf("variant %s: missing write confirmation", spec.Name)
		}
		result[spec.Name] = urls[i]
	}

	return result, width, height, nil
}

// BestVariantURL picks the largest available rung, falling back down the
// ladder. Used for a video's posterUrl.
func BestVariantURL(variants map[string]string) string {
	for i := len(VariantLadder) - 1; i >= 0; i-- {
		if url, ok := variants[VariantLadder[i].Name]; ok && url != "" {
			return url
		}
	}
	return ""
}
