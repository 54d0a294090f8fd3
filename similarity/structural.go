package similarity

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// structuralSize is the canonical comparison resolution. SSIM cost grows
// with pixel count, so frames are downsampled before scoring.
const structuralSize = 256

// SSIM window parameters for the full 8-bit dynamic range.
const (
	ssimWindow = 11
	ssimSigma  = 1.5
	ssimC1     = 6.5025  // (0.01 * 255)^2
	ssimC2     = 58.5225 // (0.03 * 255)^2
)

// StructuralStrategy scores frames with a windowed structural similarity
// index over downsampled grayscale images. It needs no model data and is
// the fallback when the embedding strategy cannot initialize.
type StructuralStrategy struct {
	size image.Point
}

// NewStructuralStrategy returns a structural similarity scorer at the
// canonical 256x256 comparison resolution.
func NewStructuralStrategy() *StructuralStrategy {
	return &StructuralStrategy{size: image.Pt(structuralSize, structuralSize)}
}

// Name implements Strategy.
func (s *StructuralStrategy) Name() string { return "structural" }

// Difference implements Strategy: 1 - SSIM of the two frames.
func (s *StructuralStrategy) Difference(a, b gocv.Mat) (float64, error) {
	grayA, err := s.GraySmall(a)
	if err != nil {
		return 0, err
	}
	defer grayA.Close()

	grayB, err := s.GraySmall(b)
	if err != nil {
		return 0, err
	}
	defer grayB.Close()

	return clampUnit(1.0 - SSIM(grayA, grayB)), nil
}

// GraySmall converts a frame to grayscale at the comparison resolution.
// The caller owns the returned Mat. Exported so the dedup pass can cache
// the downsampled buffer once per candidate.
func (s *StructuralStrategy) GraySmall(m gocv.Mat) (gocv.Mat, error) {
	if m.Empty() {
		return gocv.Mat{}, fmt.Errorf("cannot compare empty image")
	}

	gray := gocv.NewMat()
	switch m.Channels() {
	case 1:
		m.CopyTo(&gray)
	case 3:
		gocv.CvtColor(m, &gray, gocv.ColorRGBToGray)
	case 4:
		gocv.CvtColor(m, &gray, gocv.ColorRGBAToGray)
	default:
		gray.Close()
		return gocv.Mat{}, fmt.Errorf("unsupported channel count %d", m.Channels())
	}

	small := gocv.NewMat()
	gocv.Resize(gray, &small, s.size, 0, 0, gocv.InterpolationArea)
	gray.Close()
	return small, nil
}

// SSIM computes the mean structural similarity index between two equal-size
// 8-bit grayscale images using an 11x11 Gaussian window, data range 255.
// Returns a value in [-1,1], 1 meaning identical.
func SSIM(a, b gocv.Mat) float64 {
	if a.Empty() || b.Empty() || a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return 0
	}

	i1 := gocv.NewMat()
	i2 := gocv.NewMat()
	defer i1.Close()
	defer i2.Close()
	a.ConvertTo(&i1, gocv.MatTypeCV32F)
	b.ConvertTo(&i2, gocv.MatTypeCV32F)

	window := image.Pt(ssimWindow, ssimWindow)

	mu1 := gocv.NewMat()
	mu2 := gocv.NewMat()
	defer mu1.Close()
	defer mu2.Close()
	gocv.GaussianBlur(i1, &mu1, window, ssimSigma, ssimSigma, gocv.BorderDefault)
	gocv.GaussianBlur(i2, &mu2, window, ssimSigma, ssimSigma, gocv.BorderDefault)

	mu1Sq := gocv.NewMat()
	mu2Sq := gocv.NewMat()
	mu1Mu2 := gocv.NewMat()
	defer mu1Sq.Close()
	defer mu2Sq.Close()
	defer mu1Mu2.Close()
	gocv.Multiply(mu1, mu1, &mu1Sq)
	gocv.Multiply(mu2, mu2, &mu2Sq)
	gocv.Multiply(mu1, mu2, &mu1Mu2)

	sigma1Sq := blurredProduct(i1, i1, window)
	sigma2Sq := blurredProduct(i2, i2, window)
	sigma12 := blurredProduct(i1, i2, window)
	defer sigma1Sq.Close()
	defer sigma2Sq.Close()
	defer sigma12.Close()
	gocv.Subtract(sigma1Sq, mu1Sq, &sigma1Sq)
	gocv.Subtract(sigma2Sq, mu2Sq, &sigma2Sq)
	gocv.Subtract(sigma12, mu1Mu2, &sigma12)

	// numerator = (2*mu1*mu2 + C1) * (2*sigma12 + C2)
	t1 := gocv.NewMat()
	defer t1.Close()
	mu1Mu2.CopyTo(&t1)
	t1.MultiplyFloat(2)
	t1.AddFloat(ssimC1)

	t2 := gocv.NewMat()
	defer t2.Close()
	sigma12.CopyTo(&t2)
	t2.MultiplyFloat(2)
	t2.AddFloat(ssimC2)

	numerator := gocv.NewMat()
	defer numerator.Close()
	gocv.Multiply(t1, t2, &numerator)

	// denominator = (mu1^2 + mu2^2 + C1) * (sigma1^2 + sigma2^2 + C2)
	d1 := gocv.NewMat()
	defer d1.Close()
	gocv.Add(mu1Sq, mu2Sq, &d1)
	d1.AddFloat(ssimC1)

	d2 := gocv.NewMat()
	defer d2.Close()
	gocv.Add(sigma1Sq, sigma2Sq, &d2)
	d2.AddFloat(ssimC2)

	denominator := gocv.NewMat()
	defer denominator.Close()
	gocv.Multiply(d1, d2, &denominator)

	ssimMap := gocv.NewMat()
	defer ssimMap.Close()
	gocv.Divide(numerator, denominator, &ssimMap)

	return ssimMap.Mean().Val1
}

// blurredProduct returns gaussian_blur(x .* y). Caller closes the result.
func blurredProduct(x, y gocv.Mat, window image.Point) gocv.Mat {
	prod := gocv.NewMat()
	defer prod.Close()
	gocv.Multiply(x, y, &prod)

	out := gocv.NewMat()
	gocv.GaussianBlur(prod, &out, window, ssimSigma, ssimSigma, gocv.BorderDefault)
	return out
}
