package staging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeon/renderplane/common/logger"
	"github.com/pixeon/renderplane/common/storage"
)

func testStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), logger.New("error", "text"))
	require.NoError(t, err)
	return store
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func savePNG(t *testing.T, store storage.Store, rel string, img image.Image) {
	t.Helper()
	_, err := store.Save(context.Background(), rel, encodePNG(t, img))
	require.NoError(t, err)
}

func nrgbaAt(t *testing.T, img image.Image, x, y int) color.NRGBA {
	t.Helper()
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestMergeMaskIntoAlpha(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	merger := NewMerger(store, logger.New("error", "text"))

	// solid red base
	base := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			base.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	// white stroke at (0,0), black elsewhere
	mask := image.NewGray(image.Rect(0, 0, 4, 2))
	mask.SetGray(0, 0, color.Gray{Y: 255})

	savePNG(t, store, "base.png", base)
	savePNG(t, store, "mask.png", mask)

	outPath, err := merger.MergeMaskIntoAlpha(ctx, "base.png", "mask.png")
	require.NoError(t, err)
	assert.Equal(t, "base__masked.png", outPath)

	raw, err := store.Read(ctx, outPath)
	require.NoError(t, err)
	merged, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	require.Equal(t, image.Rect(0, 0, 4, 2), merged.Bounds())

	// the stroke becomes transparent, untouched areas stay opaque red
	stroke := nrgbaAt(t, merged, 0, 0)
	assert.Equal(t, uint8(0), stroke.A)

	kept := nrgbaAt(t, merged, 1, 0)
	assert.Equal(t, uint8(255), kept.A)
	assert.Equal(t, uint8(255), kept.R)
	assert.Equal(t, uint8(0), kept.G)
}

func TestMergeMaskIntoAlpha_ResizesMask(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	merger := NewMerger(store, logger.New("error", "text"))

	base := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			base.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
		}
	}

	// half-size all-white mask; after scaling the whole image is transparent
	mask := image.NewGray(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	savePNG(t, store, "inputs/base.png", base)
	savePNG(t, store, "inputs/mask.png", mask)

	outPath, err := merger.MergeMaskIntoAlpha(ctx, "inputs/base.png", "inputs/mask.png")
	require.NoError(t, err)
	assert.Equal(t, "inputs/base__masked.png", outPath)

	raw, err := store.Read(ctx, outPath)
	require.NoError(t, err)
	merged, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	require.Equal(t, image.Rect(0, 0, 4, 4), merged.Bounds())
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, uint8(0), nrgbaAt(t, merged, x, y).A, "pixel (%d,%d)", x, y)
		}
	}
}

func TestMergeMaskIntoAlpha_MissingMask(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	merger := NewMerger(store, logger.New("error", "text"))

	base := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	savePNG(t, store, "base.png", base)

	_, err := merger.MergeMaskIntoAlpha(ctx, "base.png", "nope.png")
	assert.Error(t, err)
}
