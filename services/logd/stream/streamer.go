// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream maintains WebSocket subscriptions and fans ingested
// entries out to matching subscribers.
//
// A Client wraps one WebSocket connection and owns any number of named
// subscriptions keyed by stream_id. Delivery is strictly non-blocking:
// each client has a bounded outbound queue drained by a single writer
// goroutine, and a client that cannot keep up (full queue or a write
// timeout) is dropped rather than buffered. There is no redelivery.
package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// writeTimeout bounds a single WebSocket write. A subscriber that can't
// absorb a frame within this window is evicted.
const writeTimeout = time.Second

// sendQueueSize is the per-connection outbound buffer.
const sendQueueSize = 256

// Frame is a server→client WebSocket message.
type Frame struct {
	Type      string            `json:"type"`
	StreamID  string            `json:"stream_id,omitempty"`
	Data      any               `json:"data,omitempty"`
	Alerts    []datatypes.Alert `json:"alerts,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
}

// Streamer is the subscription table. One per server.
type Streamer struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}

	// subCount tracks live (stream_id, client) pairs without touching
	// the per-client locks.
	subCount atomic.Int64
}

// NewStreamer creates an empty subscription table.
func NewStreamer(log *slog.Logger) *Streamer {
	if log == nil {
		log = slog.Default()
	}
	return &Streamer{
		log:     log,
		clients: make(map[*Client]struct{}),
	}
}

// Register wraps a freshly upgraded connection and starts its writer
// goroutine. The caller keeps running the read loop; the returned
// Client must be closed when the read loop exits.
func (s *Streamer) Register(conn *websocket.Conn) *Client {
	c := &Client{
		streamer: s,
		conn:     conn,
		send:     make(chan Frame, sendQueueSize),
		subs:     make(map[string]*datatypes.StreamFilter),
		done:     make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go c.writePump()
	return c
}

// Dispatch evaluates every active subscription against the entry and
// enqueues a log_entry frame for each match. Clients whose queue is
// full are marked dead and evicted at the end of the pass.
func (s *Streamer) Dispatch(entry *datatypes.LogEntry, alerts []datatypes.Alert) {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	ts := datatypes.Now()
	var dead []*Client
	for _, c := range clients {
		for streamID, filter := range c.snapshotSubs() {
			if !filter.Matches(entry) {
				continue
			}
			frame := Frame{
				Type:      "log_entry",
				StreamID:  streamID,
				Data:      entry,
				Alerts:    alerts,
				Timestamp: ts,
			}
			if !c.trySend(frame) {
				dead = append(dead, c)
				break
			}
		}
	}
	for _, c := range dead {
		s.log.Warn("dropping slow stream subscriber")
		c.Close()
	}
}

// ActiveSubscriptions counts live (stream_id, client) pairs.
func (s *Streamer) ActiveSubscriptions() int {
	return int(s.subCount.Load())
}

// unregister removes the client from the table.
func (s *Streamer) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// Client is one WebSocket consumer with its subscriptions.
type Client struct {
	streamer *Streamer
	conn     *websocket.Conn
	send     chan Frame
	done     chan struct{}

	mu        sync.Mutex
	subs      map[string]*datatypes.StreamFilter
	startedAt map[string]time.Time

	closeOnce sync.Once
}

// Subscribe creates or replaces the subscription named streamID.
func (c *Client) Subscribe(streamID string, filter *datatypes.StreamFilter) {
	if filter == nil {
		filter = &datatypes.StreamFilter{}
	}
	c.mu.Lock()
	if c.startedAt == nil {
		c.startedAt = make(map[string]time.Time)
	}
	_, exists := c.subs[streamID]
	if !exists {
		c.startedAt[streamID] = time.Now()
	}
	c.subs[streamID] = filter
	c.mu.Unlock()

	if !exists {
		n := c.streamer.subCount.Add(1)
		metricSubscriptionsActive.Set(float64(n))
	}
}

// UpdateFilter replaces the filter of an existing subscription. Reports
// false when the stream id is unknown.
func (c *Client) UpdateFilter(streamID string, filter *datatypes.StreamFilter) bool {
	if filter == nil {
		filter = &datatypes.StreamFilter{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[streamID]; !ok {
		return false
	}
	c.subs[streamID] = filter
	return true
}

// Unsubscribe removes the named subscription. Reports whether it
// existed.
func (c *Client) Unsubscribe(streamID string) bool {
	c.mu.Lock()
	_, ok := c.subs[streamID]
	delete(c.subs, streamID)
	delete(c.startedAt, streamID)
	c.mu.Unlock()

	if ok {
		n := c.streamer.subCount.Add(-1)
		metricSubscriptionsActive.Set(float64(n))
	}
	return ok
}

// SendControl enqueues a control frame (acks, pong). Best effort: a
// full queue drops the client like any other send.
func (c *Client) SendControl(frameType, streamID string) {
	c.SendFrame(Frame{Type: frameType, StreamID: streamID, Timestamp: datatypes.Now()})
}

// SendError enqueues a protocol error frame.
func (c *Client) SendError(message string) {
	c.SendFrame(Frame{Type: "error", Data: map[string]string{"message": message}})
}

// SendFrame enqueues an arbitrary frame, closing the client when the
// queue is full.
func (c *Client) SendFrame(frame Frame) {
	if !c.trySend(frame) {
		c.Close()
	}
}

// Close tears the client down: subscriptions vanish, the writer
// goroutine exits and the socket closes. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.streamer.unregister(c)

		c.mu.Lock()
		dropped := len(c.subs)
		c.subs = make(map[string]*datatypes.StreamFilter)
		c.mu.Unlock()
		if dropped > 0 {
			n := c.streamer.subCount.Add(int64(-dropped))
			metricSubscriptionsActive.Set(float64(n))
		}

		close(c.done)
		c.conn.Close()
	})
}

// trySend performs the non-blocking enqueue.
func (c *Client) trySend(frame Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// snapshotSubs copies the subscription map so Dispatch never holds the
// client mutex while matching.
func (c *Client) snapshotSubs() map[string]*datatypes.StreamFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(map[string]*datatypes.StreamFilter, len(c.subs))
	for id, f := range c.subs {
		snap[id] = f
	}
	return snap
}

// writePump is the single writer for the connection. A write error or
// timeout closes the client.
func (c *Client) writePump() {
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
