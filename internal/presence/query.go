package presence

// Read-side accessors. All snapshot copies, safe to call concurrently with
// ingestion and the sweeper. Absence of a user or room is a normal operating
// state and is reported as zero values, never as an error.

// CurrentRoom returns the user's confirmed room id, or empty when the user
// is unknown, vacant, or stale. Staleness is evaluated lazily against the
// exit timeout, so the answer is correct even if the sweeper has not run yet.
func (t *Tracker) CurrentRoom(user string) string {
	t.mu.RLock()
	e, ok := t.users[user]
	t.mu.RUnlock()
	if !ok {
		return ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.CurrentRoom == "" {
		return ""
	}
	if t.clock().Sub(e.p.LastSeen) > t.cfg.ExitTimeout {
		return ""
	}
	return e.p.CurrentRoom
}

// Presence returns a copy of the user's presence record.
func (t *Tracker) Presence(user string) (UserPresence, bool) {
	t.mu.RLock()
	e, ok := t.users[user]
	t.mu.RUnlock()
	if !ok {
		return UserPresence{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return copyPresence(&e.p), true
}

// GetRoomState returns a copy of the live occupancy record for the room.
func (t *Tracker) GetRoomState(roomID string) (RoomState, bool) {
	t.roomsMu.Lock()
	defer t.roomsMu.Unlock()
	rs, ok := t.rooms[roomID]
	if !ok {
		return RoomState{}, false
	}
	return *rs, true
}

// AllRoomStates returns a snapshot of every room occupancy record.
func (t *Tracker) AllRoomStates() map[string]RoomState {
	t.roomsMu.Lock()
	defer t.roomsMu.Unlock()
	out := make(map[string]RoomState, len(t.rooms))
	for id, rs := range t.rooms {
		out[id] = *rs
	}
	return out
}

// AllUserPresence returns a snapshot of every user presence record.
func (t *Tracker) AllUserPresence() map[string]UserPresence {
	t.mu.RLock()
	entries := make(map[string]*userEntry, len(t.users))
	for id, e := range t.users {
		entries[id] = e
	}
	t.mu.RUnlock()

	out := make(map[string]UserPresence, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		out[id] = copyPresence(&e.p)
		e.mu.Unlock()
	}
	return out
}

func copyPresence(p *UserPresence) UserPresence {
	cp := *p
	cp.History = append([]HistoryEntry(nil), p.History...)
	return cp
}
