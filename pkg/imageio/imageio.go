// Package imageio converts between image files on disk and the float32
// pixel planes the solvers work on. PNG and JPEG are supported on both
// sides, and images can be rescaled on load so oversized sources fit the
// target canvas.
package imageio

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/ernietedeschi/Fast-Poisson-Image-Editing/internal/models"
)

// jpegQuality applies when writing .jpg output.
const jpegQuality = 95

// Load reads a PNG or JPEG file into the solver pixel representation.
func Load(path string) (*models.Image, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return FromImage(img), nil
}

// LoadScaled reads an image and resizes it to rows x cols using
// bilinear interpolation when it does not already match.
func LoadScaled(path string, rows, cols int) (*models.Image, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	b := img.Bounds()
	if b.Dy() != rows || b.Dx() != cols {
		scaled := image.NewRGBA(image.Rect(0, 0, cols, rows))
		xdraw.BiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Over, nil)
		img = scaled
	}
	return FromImage(img), nil
}

// Save writes the pixel plane to path; the format follows the file
// extension, defaulting to PNG.
func Save(path string, im *models.Image) error {
	out := ToImage(im)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, out, &jpeg.Options{Quality: jpegQuality})
	default:
		err = png.Encode(file, out)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// FromImage converts a decoded image into the float32 plane the solvers
// use. Alpha is dropped; the blend operates on opaque RGB.
func FromImage(img image.Image) *models.Image {
	b := img.Bounds()
	im := models.NewImage(b.Dy(), b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			o := im.Offset(y-b.Min.Y, x-b.Min.X)
			im.Pix[o] = float32(r >> 8)
			im.Pix[o+1] = float32(g >> 8)
			im.Pix[o+2] = float32(bl >> 8)
		}
	}
	return im
}

// ToImage converts a float32 plane back into an 8-bit RGBA image,
// saturating each channel to [0, 255].
func ToImage(im *models.Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, im.Cols, im.Rows))
	for r := 0; r < im.Rows; r++ {
		for c := 0; c < im.Cols; c++ {
			o := im.Offset(r, c)
			p := out.PixOffset(c, r)
			out.Pix[p] = clampByte(im.Pix[o])
			out.Pix[p+1] = clampByte(im.Pix[o+1])
			out.Pix[p+2] = clampByte(im.Pix[o+2])
			out.Pix[p+3] = 255
		}
	}
	return out
}

func clampByte(v float32) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}

	return img, nil
}
