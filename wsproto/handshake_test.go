package wsproto_test

import (
	"bufio"
	"net/url"
	"strings"
	"testing"

	"github.com/duplexsock/duplexsock/wsproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptKeyMatchesRFCExample(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	got := wsproto.AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
}

func TestParseHandshakeRequest(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Origin: http://example.com\r\n\r\n"

	req, err := wsproto.ParseHandshakeRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/chat", req.Path)
	assert.Equal(t, "dGhlIHNhbXBsZSBub25jZQ==", req.Key)
	assert.Equal(t, "http://example.com", req.Origin)
	assert.True(t, wsproto.IsUpgrade(req.Header))
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, wsproto.OriginAllowed("", []string{"https://a.example"}))
	assert.True(t, wsproto.OriginAllowed("https://a.example", []string{"https://a.example"}))
	assert.False(t, wsproto.OriginAllowed("https://evil.example", []string{"https://a.example"}))
	assert.True(t, wsproto.OriginAllowed("https://anything", []string{"*"}))
}

func TestCheckAuthKey(t *testing.T) {
	assert.True(t, wsproto.CheckAuthKey(url.Values{}, ""))
	assert.False(t, wsproto.CheckAuthKey(url.Values{}, "secret"))
	assert.True(t, wsproto.CheckAuthKey(url.Values{"key": {"secret"}}, "secret"))
	assert.False(t, wsproto.CheckAuthKey(url.Values{"key": {"wrong"}}, "secret"))
}

func TestBuildSwitchingProtocolsResponseContainsHeaders(t *testing.T) {
	resp := string(wsproto.BuildSwitchingProtocolsResponse("s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", "", false))
	assert.Contains(t, resp, "HTTP/1.1 101")
	assert.Contains(t, resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")
}
