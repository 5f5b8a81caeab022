package internal

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultColor is handed to users whose join carried no color.
const DefaultColor = "#3498db"

// User is one joined connection. Its ID is the connection id, so it dies with the
// connection and is never handed to anyone else.
type User struct {
	ID       string    `json:"userId"`
	Nickname string    `json:"nickname"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (u User) Info() UserInfo {
	return UserInfo{UserID: u.ID, Nickname: u.Nickname, Color: u.Color}
}

// Registry maps connection ids to joined users. The hub goroutine is the only
// writer; the lock exists for HTTP readers such as /api/users.
type Registry struct {
	mu    sync.RWMutex
	users map[string]User
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]User), now: time.Now}
}

// Join registers the connection, synthesizing a nickname and color when they are
// blank. A second join on the same connection replaces the display identity but
// keeps the original join time.
func (r *Registry) Join(connID, nickname, color string) User {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = "User-" + shortID(connID)
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = DefaultColor
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	user := User{ID: connID, Nickname: nickname, Color: color, JoinedAt: r.now()}
	if existing, ok := r.users[connID]; ok {
		user.JoinedAt = existing.JoinedAt
	}
	r.users[connID] = user
	return user
}

// Leave drops the connection's user. The bool is false when it never joined.
func (r *Registry) Leave(connID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[connID]
	if ok {
		delete(r.users, connID)
	}
	return user, ok
}

func (r *Registry) Lookup(connID string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[connID]
	return user, ok
}

// Roster returns every joined user ordered by join time.
func (r *Registry) Roster() []User {
	r.mu.RLock()
	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	r.mu.RUnlock()
	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})
	return users
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func shortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[:6]
}
