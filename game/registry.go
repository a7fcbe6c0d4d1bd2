package game

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

const maxPlayersPerRoom = 8

// Member is one connection's identity inside a room.
type Member struct {
	ConnID    string
	Username  string
	Avatar    string
	AccountID string
}

// Room is one lobby/game instance. A room with zero members never
// survives a registry operation.
type Room struct {
	ID        string
	CreatorID string
	CreatedAt time.Time

	// Ordered by join time. The creator promotion on departure picks
	// the first remaining entry.
	Members []*Member

	// Cumulative score per username for the room's lifetime.
	Scores map[string]int

	// Active round, nil while the room is waiting.
	Round *RoundState
}

func (r *Room) member(connID string) *Member {
	for _, m := range r.Members {
		if m.ConnID == connID {
			return m
		}
	}
	return nil
}

func (r *Room) Phase() Phase {
	if r.Round == nil {
		return PhaseWaiting
	}
	return r.Round.Phase
}

// Users returns the member view broadcast to clients, in join order.
func (r *Room) Users() []UserInfo {
	users := make([]UserInfo, 0, len(r.Members))
	for _, m := range r.Members {
		users = append(users, UserInfo{ID: m.ConnID, Name: m.Username, Avatar: m.Avatar})
	}
	return users
}

// ScoreEntries returns the ledger as ordered [username, score] pairs,
// following member join order.
func (r *Room) ScoreEntries() []ScoreEntry {
	entries := make([]ScoreEntry, 0, len(r.Scores))
	for _, m := range r.Members {
		if score, ok := r.Scores[m.Username]; ok {
			entries = append(entries, ScoreEntry{Username: m.Username, Score: score})
		}
	}
	return entries
}

// Registry owns every live room and the connection→room mapping. It is
// mutated only on the gateway goroutine.
type Registry struct {
	rooms      map[string]*Room
	roomByConn map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		roomByConn: make(map[string]string),
	}
}

// generateRoomID returns a 8-char uppercase hex id unused by any live room.
func (reg *Registry) generateRoomID() string {
	for {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			continue
		}
		id := strings.ToUpper(hex.EncodeToString(b))
		if _, taken := reg.rooms[id]; !taken {
			return id
		}
	}
}

// CreateRoom registers the connection as the sole member and creator of
// a fresh room.
func (reg *Registry) CreateRoom(connID, username, avatar, accountID string) *Room {
	room := &Room{
		ID:        reg.generateRoomID(),
		CreatorID: connID,
		CreatedAt: time.Now(),
		Members:   []*Member{{ConnID: connID, Username: username, Avatar: avatar, AccountID: accountID}},
		Scores:    map[string]int{username: 0},
	}
	reg.rooms[room.ID] = room
	reg.roomByConn[connID] = room.ID
	return room
}

// Join adds the connection to an existing room. A rejoin under an
// already-scored username resets that username's score to 0; the
// original implementation behaves this way and callers depend on it.
func (reg *Registry) Join(roomID, connID, username, avatar, accountID string) (*Room, error) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.member(connID) != nil {
		return room, nil
	}
	if len(room.Members) >= maxPlayersPerRoom {
		return nil, ErrRoomFull
	}

	room.Members = append(room.Members, &Member{ConnID: connID, Username: username, Avatar: avatar, AccountID: accountID})
	room.Scores[username] = 0
	reg.roomByConn[connID] = roomID
	return room, nil
}

// Leave removes the connection from its room. It returns the room (nil
// when the connection was roomless), the removed member, the promoted
// creator (nil unless the departing member held the role and someone
// remained), and whether the now-empty room was deleted.
func (reg *Registry) Leave(connID string) (room *Room, removed *Member, promoted *Member, deleted bool) {
	roomID, ok := reg.roomByConn[connID]
	if !ok {
		return nil, nil, nil, false
	}
	delete(reg.roomByConn, connID)

	room = reg.rooms[roomID]
	if room == nil {
		return nil, nil, nil, false
	}

	for i, m := range room.Members {
		if m.ConnID == connID {
			removed = m
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			break
		}
	}
	if removed == nil {
		return room, nil, nil, false
	}
	delete(room.Scores, removed.Username)

	if len(room.Members) == 0 {
		delete(reg.rooms, roomID)
		return room, removed, nil, true
	}

	if room.CreatorID == connID {
		promoted = room.Members[0]
		room.CreatorID = promoted.ConnID
	}
	return room, removed, promoted, false
}

// Kick validates a creator-only removal request. The actual removal
// goes through Leave so the promotion and deletion paths stay single.
func (reg *Registry) Kick(requesterID, targetID, roomID string) (*Room, error) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.CreatorID != requesterID {
		return nil, ErrNotCreator
	}
	if room.member(targetID) == nil {
		return nil, ErrMemberNotFound
	}
	return room, nil
}

// Room returns the live room or nil.
func (reg *Registry) Room(roomID string) *Room {
	return reg.rooms[roomID]
}

// RoomOf returns the room a connection belongs to, or nil.
func (reg *Registry) RoomOf(connID string) *Room {
	roomID, ok := reg.roomByConn[connID]
	if !ok {
		return nil
	}
	return reg.rooms[roomID]
}

// UpdateScore adds delta to a username's ledger entry and returns the
// new total. Unknown rooms or usernames report -1.
func (reg *Registry) UpdateScore(roomID, username string, delta int) int {
	room, ok := reg.rooms[roomID]
	if !ok {
		return -1
	}
	if _, ok := room.Scores[username]; !ok {
		return -1
	}
	room.Scores[username] += delta
	return room.Scores[username]
}

// Len reports the number of live rooms.
func (reg *Registry) Len() int { return len(reg.rooms) }
