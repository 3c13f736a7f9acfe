// Package vision implements the motion pipeline's image operations, video
// source and preview compositor on OpenCV through gocv.
//
// Every Frame wraps a gocv.Mat and must be closed by its owner.
package vision
