// Package registry holds the namespace/room membership indices behind
// a single coarse lock.
package registry

import "sync"

const defaultNamespace = "/"

type roomKey struct {
	namespace string
	room      string
}

// Registry tracks which clients belong to which namespace and which
// rooms within it.
type Registry struct {
	mu sync.Mutex

	byNamespace map[string]map[string]struct{}    // namespace -> set(clientId)
	byRoom      map[roomKey]map[string]struct{}   // (namespace,room) -> set(clientId)
	clientNS    map[string]string                 // clientId -> namespace
	clientRooms map[string]map[string]struct{}    // clientId -> set(room), within clientNS[id]
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		byNamespace: make(map[string]map[string]struct{}),
		byRoom:      make(map[roomKey]map[string]struct{}),
		clientNS:    make(map[string]string),
		clientRooms: make(map[string]map[string]struct{}),
	}
}

// DefaultNamespace is the namespace a client joins when none is named.
const DefaultNamespace = defaultNamespace

// JoinNamespace moves clientID into namespace, implicitly leaving its
// previous namespace and all of that namespace's rooms first.
func (r *Registry) JoinNamespace(clientID, namespace string) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveNamespaceLocked(clientID)

	set, ok := r.byNamespace[namespace]
	if !ok {
		set = make(map[string]struct{})
		r.byNamespace[namespace] = set
	}
	set[clientID] = struct{}{}
	r.clientNS[clientID] = namespace
	r.clientRooms[clientID] = make(map[string]struct{})
}

// LeaveNamespace removes clientID from its current namespace, having
// first left every room it occupied. Called on disconnect.
func (r *Registry) LeaveNamespace(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveNamespaceLocked(clientID)
}

func (r *Registry) leaveNamespaceLocked(clientID string) {
	ns, ok := r.clientNS[clientID]
	if !ok {
		return
	}
	r.leaveAllRoomsLocked(clientID)
	if set, ok := r.byNamespace[ns]; ok {
		delete(set, clientID)
		if len(set) == 0 {
			delete(r.byNamespace, ns)
		}
	}
	delete(r.clientNS, clientID)
	delete(r.clientRooms, clientID)
}

// JoinRoom adds clientID to room within its current namespace. It is a
// no-op if clientID has not joined a namespace.
func (r *Registry) JoinRoom(clientID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.clientNS[clientID]
	if !ok {
		return
	}
	key := roomKey{namespace: ns, room: room}
	set, ok := r.byRoom[key]
	if !ok {
		set = make(map[string]struct{})
		r.byRoom[key] = set
	}
	set[clientID] = struct{}{}
	r.clientRooms[clientID][room] = struct{}{}
}

// LeaveRoom removes clientID from room within its current namespace.
func (r *Registry) LeaveRoom(clientID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveRoomLocked(clientID, room)
}

func (r *Registry) leaveRoomLocked(clientID, room string) {
	ns, ok := r.clientNS[clientID]
	if !ok {
		return
	}
	key := roomKey{namespace: ns, room: room}
	if set, ok := r.byRoom[key]; ok {
		delete(set, clientID)
		if len(set) == 0 {
			delete(r.byRoom, key)
		}
	}
	if rooms, ok := r.clientRooms[clientID]; ok {
		delete(rooms, room)
	}
}

// LeaveAllRooms removes clientID from every room it occupies, without
// affecting its namespace membership.
func (r *Registry) LeaveAllRooms(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveAllRoomsLocked(clientID)
}

func (r *Registry) leaveAllRoomsLocked(clientID string) {
	rooms, ok := r.clientRooms[clientID]
	if !ok {
		return
	}
	for room := range rooms {
		r.leaveRoomLocked(clientID, room)
	}
}

// GetClientsInNamespace returns the client ids in namespace.
func (r *Registry) GetClientsInNamespace(namespace string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return setToSlice(r.byNamespace[namespace])
}

// GetClientsInRoom returns the client ids in (namespace, room).
func (r *Registry) GetClientsInRoom(namespace, room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return setToSlice(r.byRoom[roomKey{namespace: namespace, room: room}])
}

// GetRooms returns the distinct room names currently populated within
// namespace.
func (r *Registry) GetRooms(namespace string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rooms []string
	for key, set := range r.byRoom {
		if key.namespace == namespace && len(set) > 0 {
			rooms = append(rooms, key.room)
		}
	}
	return rooms
}

// GetClientRooms returns the rooms clientID currently occupies.
func (r *Registry) GetClientRooms(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return setToSlice(r.clientRooms[clientID])
}

// Namespace returns the namespace clientID currently occupies, and
// whether it occupies one at all.
func (r *Registry) Namespace(clientID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.clientNS[clientID]
	return ns, ok
}

func setToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
