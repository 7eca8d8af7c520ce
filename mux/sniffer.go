// File: mux/sniffer.go
// Protocol sniffer for the first non-empty read on an unknown-kind
// client.
package mux

import "bytes"

var httpMethodPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST "),
	[]byte("PUT "),
	[]byte("DELETE "),
	[]byte("OPTIONS "),
	[]byte("PATCH "),
	[]byte("HEAD "),
}

// wsUpgradeHeader is matched case-sensitively.
var wsUpgradeHeader = []byte("Upgrade: websocket")

// Sniff classifies the first bytes of a connection as HTTP, WS, or
// unknown (no HTTP method prefix matched: either too few bytes so far
// or not HTTP at all). On unknown, readOne keeps buffering and
// disconnects once more than readChunkSize bytes fail to match; the
// handshake timeout sweep also disconnects such clients.
func Sniff(data []byte) Kind {
	matchesMethod := false
	for _, prefix := range httpMethodPrefixes {
		if bytes.HasPrefix(data, prefix) {
			matchesMethod = true
			break
		}
	}
	if !matchesMethod {
		return KindUnknown
	}
	if bytes.Contains(data, wsUpgradeHeader) {
		return KindWS
	}
	return KindHTTP
}
