package session

import (
	"sync"

	"github.com/concord-chat/relay/internal/models"
)

// Roster is the ordered list of known users
type Roster struct {
	mu    sync.RWMutex
	users []models.User
}

// NewRoster creates an empty roster
func NewRoster() *Roster {
	return &Roster{}
}

// Replace swaps in a bulk-loaded user list, dropping duplicate ids
func (r *Roster) Replace(users []models.User) {
	seen := make(map[string]bool, len(users))
	next := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.UserID == "" || seen[u.UserID] {
			continue
		}
		seen[u.UserID] = true
		next = append(next, u)
	}

	r.mu.Lock()
	r.users = next
	r.mu.Unlock()
}

// Add appends a user unless the id is present
func (r *Roster) Add(u models.User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.UserID == u.UserID {
			return false
		}
	}
	r.users = append(r.users, u)
	return true
}

// Remove deletes a user by id
func (r *Roster) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, u := range r.users {
		if u.UserID == id {
			r.users = append(r.users[:i:i], r.users[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the roster
func (r *Roster) List() []models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.User(nil), r.users...)
}

// Len returns the number of users
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
