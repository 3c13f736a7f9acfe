// Package kafka publishes capture events to a Kafka topic as JSON messages
// keyed by command ID.
package kafka
