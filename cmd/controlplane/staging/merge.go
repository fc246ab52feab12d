package staging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path"
	"strings"

	_ "image/jpeg"

	"golang.org/x/image/draw"

	"github.com/pixeon/renderplane/common/logger"
	"github.com/pixeon/renderplane/common/storage"
)

// Merger embeds a mask into the alpha channel of its base image. Workflows
// whose mask node reads LoadImage.MASK get one merged file instead of two
// separate uploads.
type Merger struct {
	store storage.Store
	log   *logger.Logger
}

func NewMerger(store storage.Store, log *logger.Logger) *Merger {
	return &Merger{store: store, log: log}
}

// MergeMaskIntoAlpha writes <base stem>__masked.png next to the base image:
// the base's RGB with the mask's inverted luminance as alpha. The mask is
// resized to the base's dimensions with nearest-neighbor when they differ.
func (m *Merger) MergeMaskIntoAlpha(ctx context.Context, basePath, maskPath string) (string, error) {
	baseRaw, err := m.store.Read(ctx, basePath)
	if err != nil {
		return "", fmt.Errorf("read base image: %w", err)
	}
	maskRaw, err := m.store.Read(ctx, maskPath)
	if err != nil {
		return "", fmt.Errorf("read mask: %w", err)
	}

	baseImg, _, err := image.Decode(bytes.NewReader(baseRaw))
	if err != nil {
		return "", fmt.Errorf("decode base image: %w", err)
	}
	maskImg, _, err := image.Decode(bytes.NewReader(maskRaw))
	if err != nil {
		return "", fmt.Errorf("decode mask: %w", err)
	}

	// Mask editor exports black background with white strokes; invert so
	// strokes become transparent regions for inpainting.
	gray := invertedLuminance(maskImg)
	if !gray.Bounds().Eq(baseImg.Bounds()) {
		resized := image.NewGray(baseImg.Bounds())
		draw.NearestNeighbor.Scale(resized, resized.Bounds(), gray, gray.Bounds(), draw.Src, nil)
		gray = resized
	}

	bounds := baseImg.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(baseImg.At(x, y)).(color.NRGBA)
			out.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: gray.GrayAt(x, y).Y})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return "", fmt.Errorf("encode merged image: %w", err)
	}

	outPath := mergedPath(basePath)
	if _, err := m.store.Save(ctx, outPath, buf.Bytes()); err != nil {
		return "", fmt.Errorf("save merged image: %w", err)
	}
	m.log.Debug("merged mask into alpha channel", "base", basePath, "out", outPath)
	return outPath, nil
}

func mergedPath(basePath string) string {
	dir, file := path.Split(basePath)
	stem := strings.TrimSuffix(file, path.Ext(file))
	return dir + stem + "__masked.png"
}

func invertedLuminance(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R 601-2 luma, matching the authoring tool's grayscale
			l := (299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000
			gray.SetGray(x, y, color.Gray{Y: 255 - uint8(l)})
		}
	}
	return gray
}
