// Package web serves the camtrap HTTP surface with fiber: the preview page,
// the MJPEG stream, server-sent status events, click-to-recenter, a JSON API
// for the CLI and websocket feeds.
package web
