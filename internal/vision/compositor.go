package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"camtrap/internal/motion"
)

var (
	boxColor    = color.RGBA{G: 255, A: 255}
	labelColor  = color.RGBA{R: 255, A: 255}
	paddingGray = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// Compositor draws the preview: the annotated original on the left and the
// crop, threshold mask and delta stacked on a gray panel to its right.
type Compositor struct {
	Quality int
}

var _ motion.Compositor = (*Compositor)(nil)

func (c *Compositor) Compose(in motion.Composite) ([]byte, error) {
	original, err := matOf(in.Original)
	if err != nil {
		return nil, err
	}
	left := original.Clone()
	defer left.Close()
	region := in.Region.Inset(-1)
	gocv.Rectangle(&left, region, boxColor, 1)
	gocv.PutText(&left, fmt.Sprintf("FPS: %d", in.FPS), image.Pt(10, left.Rows()-10), gocv.FontHersheySimplex, 0.5, labelColor, 2)

	panel, err := c.panel(in)
	if err != nil {
		return nil, err
	}
	defer panel.Close()

	height := max(left.Rows(), panel.Rows())
	padLeft := padBottom(left, height)
	defer padLeft.Close()
	padPanel := padBottom(panel, height)
	defer padPanel.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.Hconcat(padLeft, padPanel, &out)
	return encodeJPEG(out, c.Quality)
}

func (c *Compositor) panel(in motion.Composite) (gocv.Mat, error) {
	crop, err := matOf(in.Crop)
	if err != nil {
		return gocv.Mat{}, err
	}
	thresh, err := matOf(in.Threshold)
	if err != nil {
		return gocv.Mat{}, err
	}
	delta, err := matOf(in.Delta)
	if err != nil {
		return gocv.Mat{}, err
	}

	boxed := crop.Clone()
	defer boxed.Close()
	for _, box := range in.Boxes {
		gocv.Rectangle(&boxed, box, boxColor, 2)
	}
	threshBGR := gocv.NewMat()
	defer threshBGR.Close()
	gocv.CvtColor(thresh, &threshBGR, gocv.ColorGrayToBGR)
	deltaBGR := gocv.NewMat()
	defer deltaBGR.Close()
	gocv.CvtColor(delta, &deltaBGR, gocv.ColorGrayToBGR)

	upper := gocv.NewMat()
	defer upper.Close()
	gocv.Vconcat(boxed, threshBGR, &upper)
	stack := gocv.NewMat()
	defer stack.Close()
	gocv.Vconcat(upper, deltaBGR, &stack)

	panel := gocv.NewMat()
	gocv.CopyMakeBorder(stack, &panel, 0, 0, 10, 10, gocv.BorderConstant, paddingGray)
	return panel, nil
}

func padBottom(src gocv.Mat, height int) gocv.Mat {
	dst := gocv.NewMat()
	gocv.CopyMakeBorder(src, &dst, 0, height-src.Rows(), 0, 0, gocv.BorderConstant, paddingGray)
	return dst
}

func encodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	var (
		buf *gocv.NativeByteBuffer
		err error
	)
	if quality > 0 {
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	} else {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, mat)
	}
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}
