package registry_test

import (
	"sort"
	"testing"

	"github.com/duplexsock/duplexsock/registry"
	"github.com/stretchr/testify/assert"
)

func TestJoinNamespaceDefault(t *testing.T) {
	r := registry.New()
	r.JoinNamespace("c1", "")
	ns, ok := r.Namespace("c1")
	assert.True(t, ok)
	assert.Equal(t, registry.DefaultNamespace, ns)
}

func TestJoinNamespaceLeavesPrevious(t *testing.T) {
	r := registry.New()
	r.JoinNamespace("c1", "/a")
	r.JoinRoom("c1", "r1")
	r.JoinNamespace("c1", "/b")

	assert.Empty(t, r.GetClientsInNamespace("/a"))
	assert.Empty(t, r.GetClientsInRoom("/a", "r1"))
	assert.Equal(t, []string{"c1"}, r.GetClientsInNamespace("/b"))
	assert.Empty(t, r.GetClientRooms("c1"))
}

func TestRoomMembershipInvariant(t *testing.T) {
	r := registry.New()
	r.JoinNamespace("a", "/")
	r.JoinNamespace("b", "/")
	r.JoinNamespace("c", "/")
	r.JoinRoom("a", "lobby")
	r.JoinRoom("b", "lobby")

	members := r.GetClientsInRoom("/", "lobby")
	sort.Strings(members)
	assert.Equal(t, []string{"a", "b"}, members)

	ns := r.GetClientsInNamespace("/")
	sort.Strings(ns)
	assert.Equal(t, []string{"a", "b", "c"}, ns)
}

func TestLeaveNamespaceClearsAllIndices(t *testing.T) {
	r := registry.New()
	r.JoinNamespace("a", "/")
	r.JoinRoom("a", "lobby")
	r.LeaveNamespace("a")

	_, ok := r.Namespace("a")
	assert.False(t, ok)
	assert.Empty(t, r.GetClientsInRoom("/", "lobby"))
	assert.Empty(t, r.GetClientRooms("a"))
	assert.Empty(t, r.GetClientsInNamespace("/"))
}

func TestLeaveRoomKeepsNamespace(t *testing.T) {
	r := registry.New()
	r.JoinNamespace("a", "/")
	r.JoinRoom("a", "lobby")
	r.LeaveRoom("a", "lobby")

	ns, ok := r.Namespace("a")
	assert.True(t, ok)
	assert.Equal(t, "/", ns)
	assert.Empty(t, r.GetClientsInRoom("/", "lobby"))
}

func TestGetRoomsForNamespace(t *testing.T) {
	r := registry.New()
	r.JoinNamespace("a", "/ns")
	r.JoinRoom("a", "r1")
	r.JoinRoom("a", "r2")
	rooms := r.GetRooms("/ns")
	sort.Strings(rooms)
	assert.Equal(t, []string{"r1", "r2"}, rooms)
}
