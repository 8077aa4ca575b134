// Package corestate holds the small flat-JSON documents that the message
// loop, IPC watcher, and scheduler share: registered groups, the router
// watermark, and the per-group planner session map. Each document is
// written by exactly one loop; every reader sees a whole snapshot, never a
// torn one, per the write-temp-then-rename discipline in persistence.Document.
package corestate

import (
	"path/filepath"
	"time"

	"github.com/nanoclaw/ops/internal/persistence"
)

// RegisteredGroup is one chat the core will accept turns from.
type RegisteredGroup struct {
	ChatID  int64     `json:"chatId"`
	Name    string    `json:"name"`
	Folder  string    `json:"folder"`
	Trigger string    `json:"trigger"`
	AddedAt time.Time `json:"addedAt"`
}

type routerStateDoc struct {
	LastTimestamp      int64           `json:"last_timestamp"`
	LastAgentTimestamp map[int64]int64 `json:"last_agent_timestamp"`
}

// Store owns router_state.json, sessions.json, and registered_groups.json.
type Store struct {
	router   *persistence.Document[routerStateDoc]
	sessions *persistence.Document[map[string]string]
	groups   *persistence.Document[map[int64]RegisteredGroup]
}

// Open loads the three documents from dataDir, creating none of them until
// the first Update call persists one.
func Open(dataDir string) (*Store, error) {
	s := &Store{
		router:   persistence.NewDocument(filepath.Join(dataDir, "router_state.json"), routerStateDoc{LastAgentTimestamp: map[int64]int64{}}),
		sessions: persistence.NewDocument(filepath.Join(dataDir, "sessions.json"), map[string]string{}),
		groups:   persistence.NewDocument(filepath.Join(dataDir, "registered_groups.json"), map[int64]RegisteredGroup{}),
	}
	loaders := []interface{ Load() error }{s.router, s.sessions, s.groups}
	for _, d := range loaders {
		if err := d.Load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RegisteredGroups returns a snapshot keyed by chat id.
func (s *Store) RegisteredGroups() map[int64]RegisteredGroup {
	return s.groups.Snapshot()
}

// RegisterGroup adds or replaces a group registration.
func (s *Store) RegisterGroup(g RegisteredGroup) error {
	return s.groups.Update(func(m *map[int64]RegisteredGroup) {
		if *m == nil {
			*m = map[int64]RegisteredGroup{}
		}
		(*m)[g.ChatID] = g
	})
}

// LookupGroupByFolder finds a registration by its IPC folder name.
func (s *Store) LookupGroupByFolder(folder string) (RegisteredGroup, bool) {
	for _, g := range s.groups.Snapshot() {
		if g.Folder == folder {
			return g, true
		}
	}
	return RegisteredGroup{}, false
}

// AdvanceLastTimestamp raises the global watermark to ts if ts is newer.
func (s *Store) AdvanceLastTimestamp(ts int64) error {
	return s.router.Update(func(d *routerStateDoc) {
		if ts > d.LastTimestamp {
			d.LastTimestamp = ts
		}
	})
}

// LastTimestamp returns the current global watermark.
func (s *Store) LastTimestamp() int64 {
	return s.router.Snapshot().LastTimestamp
}

// AgentTimestamp returns the per-chat watermark used to batch messages into
// a planner turn.
func (s *Store) AgentTimestamp(chatID int64) int64 {
	return s.router.Snapshot().LastAgentTimestamp[chatID]
}

// AdvanceAgentTimestamp raises chatID's per-chat watermark to ts if ts is
// newer. Never called with a lower value than the current one; the caller
// (message loop) computes ts from the last message it successfully handed
// to the user, so the watermark is strictly monotone by construction.
func (s *Store) AdvanceAgentTimestamp(chatID, ts int64) error {
	return s.router.Update(func(d *routerStateDoc) {
		if d.LastAgentTimestamp == nil {
			d.LastAgentTimestamp = map[int64]int64{}
		}
		if ts > d.LastAgentTimestamp[chatID] {
			d.LastAgentTimestamp[chatID] = ts
		}
	})
}

// Session returns the planner session id remembered for groupFolder.
func (s *Store) Session(groupFolder string) (string, bool) {
	id, ok := s.sessions.Snapshot()[groupFolder]
	return id, ok
}

// SetSession remembers the planner session id for groupFolder.
func (s *Store) SetSession(groupFolder, sessionID string) error {
	return s.sessions.Update(func(m *map[string]string) {
		if *m == nil {
			*m = map[string]string{}
		}
		(*m)[groupFolder] = sessionID
	})
}
