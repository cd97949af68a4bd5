// Package frame compares captured screen frames using a global mean
// structural similarity index on their grayscale planes.
package frame

import (
	"errors"
	"image"
)

const (
	k1 = 0.01
	k2 = 0.03
	l  = 255.0

	c1 = (k1 * l) * (k1 * l)
	c2 = (k2 * l) * (k2 * l)
)

// ErrShapeMismatch is returned when two planes differ in size.
var ErrShapeMismatch = errors.New("frame shapes differ")

// Plane is a row-major grayscale raster with values in [0, 255].
type Plane struct {
	Width  int
	Height int
	Pix    []float64
}

// Gray converts img to luminance using 0.2989 R + 0.5870 G + 0.1140 B.
func Gray(img image.Image) *Plane {
	b := img.Bounds()
	p := &Plane{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]float64, b.Dx()*b.Dy()),
	}

	if rgba, ok := img.(*image.RGBA); ok {
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := rgba.PixOffset(b.Min.X, y)
			for x := 0; x < p.Width; x++ {
				j := off + x*4
				p.Pix[i] = luma(float64(rgba.Pix[j]), float64(rgba.Pix[j+1]), float64(rgba.Pix[j+2]))
				i++
			}
		}
		return p
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			p.Pix[i] = luma(float64(r>>8), float64(g>>8), float64(bl>>8))
			i++
		}
	}
	return p
}

func luma(r, g, b float64) float64 {
	return 0.2989*r + 0.5870*g + 0.1140*b
}

// MSSIM computes the global structural similarity of two planes:
//
//	((2 mu1 mu2 + C1)(2 sigma12 + C2)) / ((mu1^2 + mu2^2 + C1)(sigma1^2 + sigma2^2 + C2))
//
// with population variances taken over the whole image.
func MSSIM(a, b *Plane) (float64, error) {
	if a.Width != b.Width || a.Height != b.Height || len(a.Pix) != len(b.Pix) {
		return 0, ErrShapeMismatch
	}
	n := float64(len(a.Pix))
	if n == 0 {
		return 1, nil
	}

	var sumA, sumB float64
	for i := range a.Pix {
		sumA += a.Pix[i]
		sumB += b.Pix[i]
	}
	muA := sumA / n
	muB := sumB / n

	var varA, varB, cov float64
	for i := range a.Pix {
		da := a.Pix[i] - muA
		db := b.Pix[i] - muB
		varA += da * da
		varB += db * db
		cov += da * db
	}
	varA /= n
	varB /= n
	cov /= n

	num := (2*muA*muB + c1) * (2*cov + c2)
	den := (muA*muA + muB*muB + c1) * (varA + varB + c2)
	return num / den, nil
}
