package vision

import (
	"image"

	"gocv.io/x/gocv"
	"github.com/samber/lo"

	"camtrap/internal/motion"
)

// Options tunes the difference pipeline.
type Options struct {
	BlurKernel       int
	DiffThreshold    float64
	DilateIterations int
}

// Pipeline is the gocv implementation of motion.Vision.
type Pipeline struct {
	opts Options
}

var _ motion.Vision = (*Pipeline)(nil)

// NewPipeline returns a pipeline; an even or non-positive kernel is bumped to the next odd size.
func NewPipeline(opts Options) *Pipeline {
	if opts.BlurKernel <= 0 {
		opts.BlurKernel = 21
	}
	if opts.BlurKernel%2 == 0 {
		opts.BlurKernel++
	}
	if opts.DiffThreshold <= 0 {
		opts.DiffThreshold = 25
	}
	return &Pipeline{opts: opts}
}

func (p *Pipeline) Crop(f motion.Frame, r image.Rectangle) (motion.Frame, error) {
	src, err := matOf(f)
	if err != nil {
		return nil, err
	}
	r = r.Intersect(image.Rect(0, 0, src.Cols(), src.Rows()))
	roi := src.Region(r)
	defer roi.Close()
	return newFrame(roi.Clone()), nil
}

func (p *Pipeline) ToGray(f motion.Frame) (motion.Frame, error) {
	src, err := matOf(f)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	return newFrame(dst), nil
}

func (p *Pipeline) Blur(f motion.Frame) (motion.Frame, error) {
	src, err := matOf(f)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	k := p.opts.BlurKernel
	gocv.GaussianBlur(src, &dst, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	return newFrame(dst), nil
}

func (p *Pipeline) AbsDiff(a, b motion.Frame) (motion.Frame, error) {
	left, err := matOf(a)
	if err != nil {
		return nil, err
	}
	right, err := matOf(b)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	gocv.AbsDiff(left, right, &dst)
	return newFrame(dst), nil
}

// Threshold binarizes and dilates the delta to close holes.
func (p *Pipeline) Threshold(f motion.Frame) (motion.Frame, error) {
	src, err := matOf(f)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	gocv.Threshold(src, &dst, float32(p.opts.DiffThreshold), 255, gocv.ThresholdBinary)
	if p.opts.DilateIterations > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
		defer kernel.Close()
		for range p.opts.DilateIterations {
			gocv.Dilate(dst, &dst, kernel)
		}
	}
	return newFrame(dst), nil
}

func (p *Pipeline) FindContours(f motion.Frame) ([]motion.Contour, error) {
	src, err := matOf(f)
	if err != nil {
		return nil, err
	}
	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	return lo.Times(contours.Size(), func(i int) motion.Contour {
		c := contours.At(i)
		return motion.Contour{Area: gocv.ContourArea(c), Bounds: gocv.BoundingRect(c)}
	}), nil
}
