// Package objectstore archives downloaded photos to S3 compatible storage
// using the MinIO client. Archiver implements events.Sink and only reacts to
// saved captures.
package objectstore
