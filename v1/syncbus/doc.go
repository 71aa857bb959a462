// Package syncbus provides the pub/sub channel used to signal lock handoffs
// across callers and, with the Redis, NATS or Kafka backends, across nodes.
package syncbus
