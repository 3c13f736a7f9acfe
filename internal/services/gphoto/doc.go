// Package gphoto drives a tethered still camera through the gphoto2 command
// line tool. It implements capture.Driver; every failed gphoto2 invocation is
// reported as a device error so the capture worker can recover.
package gphoto
