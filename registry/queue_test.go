package registry_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/duplexsock/duplexsock/logging"
	"github.com/duplexsock/duplexsock/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	sends      []sendCall
	broadcasts []broadcastCall
}

type sendCall struct {
	clientID, event string
	data            json.RawMessage
}

type broadcastCall struct {
	event              string
	data               json.RawMessage
	namespace, room    *string
}

func (f *fakeDispatcher) Send(clientID, event string, data json.RawMessage) error {
	f.sends = append(f.sends, sendCall{clientID, event, data})
	return nil
}

func (f *fakeDispatcher) Broadcast(event string, data json.RawMessage, namespace, room *string) error {
	f.broadcasts = append(f.broadcasts, broadcastCall{event, data, namespace, room})
	return nil
}

func writeQueueFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestQueuePollDispatchesEmitAndBroadcast(t *testing.T) {
	path := writeQueueFile(t, ""+
		`{"type":"emit","clientId":"c1","event":"ping","data":{"x":1}}`+"\n"+
		`{"type":"broadcast","event":"news","data":{"t":1}}`+"\n")

	q := registry.NewQueue(path, logging.Nop())
	disp := &fakeDispatcher{}
	require.NoError(t, q.Poll(disp))

	require.Len(t, disp.sends, 1)
	assert.Equal(t, "c1", disp.sends[0].clientID)
	assert.Equal(t, "ping", disp.sends[0].event)

	require.Len(t, disp.broadcasts, 1)
	assert.Equal(t, "news", disp.broadcasts[0].event)
}

func TestQueuePollTruncatesFile(t *testing.T) {
	path := writeQueueFile(t, `{"type":"emit","clientId":"c1","event":"ping","data":{}}`+"\n")
	q := registry.NewQueue(path, logging.Nop())
	require.NoError(t, q.Poll(&fakeDispatcher{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestQueuePollSkipsMalformedRecords(t *testing.T) {
	path := writeQueueFile(t, ""+
		`not json`+"\n"+
		`{"type":"emit","clientId":"c1","event":"ping","data":{}}`+"\n"+
		`{"type":"unknown"}`+"\n")

	q := registry.NewQueue(path, logging.Nop())
	disp := &fakeDispatcher{}
	require.NoError(t, q.Poll(disp))

	require.Len(t, disp.sends, 1)
	assert.Equal(t, "c1", disp.sends[0].clientID)
}

func TestQueuePollMissingFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonl")
	q := registry.NewQueue(path, logging.Nop())
	assert.NoError(t, q.Poll(&fakeDispatcher{}))
}
