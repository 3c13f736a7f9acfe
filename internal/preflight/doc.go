// Package preflight provides readiness checks for the camera, the video
// source and the filesystem paths camtrap depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs failures as warnings; the
//     device worker's recovery loop covers a camera that is not yet attached.
//   - The CLI "camtrap check" command prints the same results as a table.
package preflight
