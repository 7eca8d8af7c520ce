// File: registry/queue.go
// A file-backed message queue: external processes append
// newline-delimited JSON records; the server drains, truncates, and
// dispatches them on a periodic cycle. Locking is platform-specific
// (queue_unix.go / queue_windows.go).
package registry

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/duplexsock/duplexsock/logging"
)

// RecordType enumerates the two queue record shapes.
type RecordType string

const (
	RecordEmit      RecordType = "emit"
	RecordBroadcast RecordType = "broadcast"
)

// Record is one decoded queue line.
type Record struct {
	Type      RecordType      `json:"type"`
	ClientID  string          `json:"clientId,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Namespace *string         `json:"namespace,omitempty"`
	Room      *string         `json:"room,omitempty"`
}

// Dispatcher is the subset of the connection multiplexer's API the
// queue poller drives: a direct send and a filtered broadcast.
type Dispatcher interface {
	Send(clientID, event string, data json.RawMessage) error
	Broadcast(event string, data json.RawMessage, namespace, room *string) error
}

// Queue polls a newline-delimited JSON file for emit/broadcast
// records.
type Queue struct {
	path string
	log  logging.Logger
}

// NewQueue builds a Queue backed by the file at path.
func NewQueue(path string, log logging.Logger) *Queue {
	return &Queue{path: path, log: log}
}

// Poll performs one drain cycle: exclusive-lock the file, read every
// line, truncate to zero, unlock, then dispatch each decoded record in
// order; the file is closed on return. A missing queue file is not an
// error (the file is created lazily by the first external writer).
// Malformed records are logged and skipped without halting the rest.
func (q *Queue) Poll(dispatcher Dispatcher) error {
	f, err := os.OpenFile(q.path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		q.log.Warn().Err(err).Str("queue_file", q.path).Msg("queue: could not acquire lock, skipping this cycle")
		return nil
	}

	lines, readErr := readAllLines(f)
	truncErr := f.Truncate(0)

	if unlockErr := unlockFile(f); unlockErr != nil {
		q.log.Warn().Err(unlockErr).Str("queue_file", q.path).Msg("queue: unlock failed")
	}

	if readErr != nil {
		return readErr
	}
	if truncErr != nil {
		return truncErr
	}

	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			q.log.Warn().Err(err).Msg("queue: malformed record, skipping")
			continue
		}
		if err := q.dispatch(dispatcher, rec); err != nil {
			q.log.Warn().Err(err).Str("type", string(rec.Type)).Msg("queue: dispatch failed, skipping record")
		}
	}
	return nil
}

func (q *Queue) dispatch(dispatcher Dispatcher, rec Record) error {
	switch rec.Type {
	case RecordEmit:
		if rec.ClientID == "" || rec.Event == "" {
			return errMalformedRecord
		}
		return dispatcher.Send(rec.ClientID, rec.Event, rec.Data)
	case RecordBroadcast:
		if rec.Event == "" {
			return errMalformedRecord
		}
		return dispatcher.Broadcast(rec.Event, rec.Data, rec.Namespace, rec.Room)
	default:
		return errMalformedRecord
	}
}

var errMalformedRecord = errMalformed("registry: malformed queue record")

type errMalformed string

func (e errMalformed) Error() string { return string(e) }

func readAllLines(f *os.File) ([][]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return lines, err
	}
	return lines, nil
}
