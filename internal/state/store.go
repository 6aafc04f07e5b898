// Package state owns the bot's shared mutable state: the admin set and the
// per-user engagement counters. Every read and write goes through Store, which
// guards each mapping with its own lock and never performs I/O while holding it.
package state

import (
	"sort"
	"sync"

	"github.com/xaenox/herald-bot/internal/models"
)

type Store struct {
	adminsMu sync.RWMutex
	admins   map[int64]struct{}

	pointsMu sync.RWMutex
	points   map[int64]int
}

func NewStore() *Store {
	return &Store{
		admins: make(map[int64]struct{}),
		points: make(map[int64]int),
	}
}

// Admin set

func (s *Store) IsAdmin(id int64) bool {
	s.adminsMu.RLock()
	defer s.adminsMu.RUnlock()

	_, ok := s.admins[id]
	return ok
}

// AddAdmin inserts id and reports whether it was newly added.
func (s *Store) AddAdmin(id int64) bool {
	s.adminsMu.Lock()
	defer s.adminsMu.Unlock()

	if _, exists := s.admins[id]; exists {
		return false
	}
	s.admins[id] = struct{}{}
	return true
}

// RemoveAdmin deletes id and reports whether it was present.
func (s *Store) RemoveAdmin(id int64) bool {
	s.adminsMu.Lock()
	defer s.adminsMu.Unlock()

	if _, exists := s.admins[id]; !exists {
		return false
	}
	delete(s.admins, id)
	return true
}

// ReplaceAdmins swaps the whole admin set for ids.
func (s *Store) ReplaceAdmins(ids []int64) {
	next := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	s.adminsMu.Lock()
	s.admins = next
	s.adminsMu.Unlock()
}

// Admins returns a sorted snapshot of the admin set.
func (s *Store) Admins() []int64 {
	s.adminsMu.RLock()
	ids := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		ids = append(ids, id)
	}
	s.adminsMu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Engagement points

// AddPoint increments the counter for id, creating it on first use, and
// returns the new value.
func (s *Store) AddPoint(id int64) int {
	s.pointsMu.Lock()
	defer s.pointsMu.Unlock()

	s.points[id]++
	return s.points[id]
}

func (s *Store) Points(id int64) int {
	s.pointsMu.RLock()
	defer s.pointsMu.RUnlock()

	return s.points[id]
}

// Users returns a snapshot of every user that has an engagement counter.
func (s *Store) Users() []int64 {
	s.pointsMu.RLock()
	ids := make([]int64, 0, len(s.points))
	for id := range s.points {
		ids = append(ids, id)
	}
	s.pointsMu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Leaderboard returns at most limit entries ordered by points descending.
// Equal scores are ordered by user ID ascending.
func (s *Store) Leaderboard(limit int) []models.LeaderboardEntry {
	s.pointsMu.RLock()
	entries := make([]models.LeaderboardEntry, 0, len(s.points))
	for id, p := range s.points {
		entries = append(entries, models.LeaderboardEntry{UserID: id, Points: p})
	}
	s.pointsMu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
