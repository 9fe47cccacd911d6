// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync/atomic"

	"handbeat/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level. Every Nth message is logged to keep 60 Hz frames readable.
type LoggingTransport struct {
	log   log.Component
	every uint64
	sent  atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance that logs one
// message in every.
func NewLoggingTransport(every int) *LoggingTransport {
	if every < 1 {
		every = 1
	}
	lt := &LoggingTransport{log: log.For("LogTransport"), every: uint64(every)}
	lt.log.Infof("using LoggingTransport (1 in %d messages)", every)
	return lt
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	n := lt.sent.Add(1)
	if (n-1)%lt.every != 0 || !lt.log.Enabled(log.LevelDebug) {
		return nil
	}
	// Attempt to marshal for pretty printing, but log raw if it fails
	jsonData, err := json.Marshal(data)
	if err != nil {
		lt.log.Debugf("received (%T): %+v (JSON marshal error: %v)", data, data, err)
	} else {
		lt.log.Debugf("received (%T): %s", data, jsonData)
	}
	return nil // Logging transport never fails to "send"
}

// Sent reports how many messages were handed to Send.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("closed after %d messages", lt.sent.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
