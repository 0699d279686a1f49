package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/observability/metrics"
)

// TrackerConfig holds the state machine tuning parameters.
type TrackerConfig struct {
	EnterThreshold float64       // readings below this confidence are discarded
	Hysteresis     time.Duration // dwell time before a transition is committed
	ExitTimeout    time.Duration // users unseen for longer are treated as vacant
	HistoryLimit   int           // bounded per-user room history length
}

// userEntry wraps one UserPresence record with its own mutex so that
// concurrent producers mutating different users never contend.
type userEntry struct {
	mu sync.Mutex
	p  UserPresence
}

// Tracker is the per-user presence state machine. Each user moves between
// four logical states: unknown (no record), settled (confirmed room),
// pending (a different candidate room accumulating dwell time) and vacant
// (confirmed no room).
//
// Ingestion, the stale sweeper and manual overrides all mutate the shared
// records concurrently; mutation of a single user's record is serialized by
// the entry mutex, room state updates by roomsMu nested under it so a user's
// transitions apply to RoomState in commit order, and listener dispatch
// happens only after all locks are released.
type Tracker struct {
	cfg     TrackerConfig
	bus     *Bus
	metrics *metrics.PresenceMetrics
	logger  *slog.Logger

	// clock is replaceable in tests
	clock func() time.Time

	mu    sync.RWMutex // guards the users map, not the records
	users map[string]*userEntry

	roomsMu sync.Mutex
	rooms   map[string]*RoomState
}

// NewTracker creates a presence tracker. The bus and metrics may be nil,
// in which case notifications and instrumentation are skipped.
func NewTracker(cfg TrackerConfig, bus *Bus, m *metrics.PresenceMetrics) *Tracker {
	return &Tracker{
		cfg:     cfg,
		bus:     bus,
		metrics: m,
		logger:  logging.ForService("presence"),
		clock:   time.Now,
		users:   make(map[string]*userEntry),
		rooms:   make(map[string]*RoomState),
	}
}

// Apply feeds one normalized reading into the state machine. Readings below
// the enter threshold are discarded, a reading for the already-confirmed
// room only refreshes the record, and a differing candidate room must dwell
// for the configured hysteresis before the transition is committed.
func (t *Tracker) Apply(r Reading) {
	if r.User == "" || r.Room == "" {
		t.dropped("invalid")
		return
	}
	if r.Confidence < t.cfg.EnterThreshold {
		t.dropped("below_threshold")
		t.logger.Debug("reading below enter threshold",
			"user", r.User, "room", r.Room,
			"confidence", r.Confidence, "source", r.Source.String())
		return
	}

	now := r.Timestamp
	if now.IsZero() {
		now = t.clock()
	}

	if t.metrics != nil {
		t.metrics.IncReadingsProcessed(r.Source.String())
	}

	e := t.entry(r.User)
	e.mu.Lock()
	p := &e.p

	var change *RoomChange
	switch {
	case p.CurrentRoom == r.Room:
		// Same room: refresh only, never notify. Any pending candidate is
		// dropped, its dwell run was interrupted and must start over.
		p.LastSeen = now
		p.Confidence = r.Confidence
		p.Source = r.Source
		p.PendingRoom = ""
		p.PendingSince = time.Time{}

	case p.PendingRoom == r.Room:
		// Candidate still dwelling; commit once the hysteresis has elapsed.
		p.LastSeen = now
		if now.Sub(p.PendingSince) >= t.cfg.Hysteresis {
			c := t.commitLocked(p, r.Room, r.Confidence, r.Source, now)
			change = &c
		}

	default:
		// New candidate room restarts the dwell timer, there is no
		// accumulation across conflicting candidates.
		p.LastSeen = now
		p.PendingRoom = r.Room
		p.PendingSince = now
		if t.metrics != nil {
			t.metrics.PendingStarted.Inc()
		}
		t.logger.Debug("pending room candidate set",
			"user", r.User, "room", r.Room, "source", r.Source.String())
	}
	if change != nil {
		t.applyRoomStates(*change, r.Confidence)
	}
	e.mu.Unlock()

	if change != nil {
		t.notify(*change)
	}
}

// SetRoom is the manual override: it commits the given room for the user
// immediately, bypassing hysteresis.
func (t *Tracker) SetRoom(user, room string) {
	now := t.clock()
	e := t.entry(user)
	e.mu.Lock()
	p := &e.p
	if p.CurrentRoom == room {
		p.LastSeen = now
		p.Confidence = 1
		p.Source = SourceManual
		p.PendingRoom = ""
		p.PendingSince = time.Time{}
		e.mu.Unlock()
		return
	}
	change := t.commitLocked(p, room, 1, SourceManual, now)
	t.applyRoomStates(change, 1)
	e.mu.Unlock()

	t.notify(change)
}

// ClearRoom clears the user's confirmed room and any pending candidate
// immediately, bypassing hysteresis. Used for GPS not_home overrides.
// No-op notification-wise when the user is already vacant or unknown.
func (t *Tracker) ClearRoom(user string, source Source) {
	if user == "" {
		return
	}
	now := t.clock()
	e := t.entry(user)
	e.mu.Lock()
	p := &e.p
	p.PendingRoom = ""
	p.PendingSince = time.Time{}

	var change *RoomChange
	if p.CurrentRoom != "" {
		old := p.CurrentRoom
		t.pushHistoryLocked(p, old, now)
		p.CurrentRoom = ""
		p.Confidence = 0
		p.Source = source
		p.LastSeen = now
		change = &RoomChange{User: p.UserID, OldRoom: old, NewRoom: "", Source: source, Time: now}
	}
	if change != nil {
		t.applyRoomStates(*change, 0)
	}
	e.mu.Unlock()

	if change != nil {
		t.notify(*change)
		t.logger.Info("room cleared by override",
			"user", user, "old_room", change.OldRoom, "source", source.String())
	}
}

// Sweep vacates every user whose last reading is older than the exit
// timeout. A user is vacated exactly once: subsequent sweeps over an
// already-vacant record are no-ops. Returns the number of users vacated.
func (t *Tracker) Sweep() int {
	now := t.clock()

	t.mu.RLock()
	entries := make([]*userEntry, 0, len(t.users))
	for _, e := range t.users {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	vacated := 0
	for _, e := range entries {
		e.mu.Lock()
		p := &e.p
		if p.CurrentRoom == "" || now.Sub(p.LastSeen) <= t.cfg.ExitTimeout {
			// Pending candidates expire on the same staleness condition;
			// otherwise they are left to be superseded by new readings.
			if p.PendingRoom != "" && now.Sub(p.PendingSince) > t.cfg.ExitTimeout {
				p.PendingRoom = ""
				p.PendingSince = time.Time{}
			}
			e.mu.Unlock()
			continue
		}

		old := p.CurrentRoom
		t.pushHistoryLocked(p, old, now)
		p.CurrentRoom = ""
		p.Confidence = 0
		// The pending candidate is at least as old as the stale LastSeen,
		// so it expires with the record.
		p.PendingRoom = ""
		p.PendingSince = time.Time{}
		change := RoomChange{User: p.UserID, OldRoom: old, NewRoom: "", Source: p.Source, Time: now}
		t.applyRoomStates(change, 0)
		e.mu.Unlock()

		t.notify(change)
		vacated++

		t.logger.Info("stale user vacated", "user", change.User, "old_room", old)
	}

	if t.metrics != nil {
		t.metrics.SweepRuns.Inc()
		t.metrics.UsersVacated.Add(float64(vacated))
	}
	return vacated
}

// commitLocked performs the confirmed transition to room. The caller must
// hold the entry mutex.
func (t *Tracker) commitLocked(p *UserPresence, room string, confidence float64, source Source, now time.Time) RoomChange {
	old := p.CurrentRoom
	if old != "" {
		t.pushHistoryLocked(p, old, now)
	}
	p.CurrentRoom = room
	p.Confidence = confidence
	p.Source = source
	p.LastSeen = now
	p.PendingRoom = ""
	p.PendingSince = time.Time{}

	if t.metrics != nil {
		t.metrics.TransitionsCommitted.Inc()
	}
	t.logger.Info("room transition committed",
		"user", p.UserID, "old_room", old, "new_room", room,
		"confidence", confidence, "source", source.String())

	return RoomChange{User: p.UserID, OldRoom: old, NewRoom: room, Source: source, Time: now}
}

// pushHistoryLocked appends the room the user left to the bounded history
// log, dropping the oldest entry beyond the cap. Caller holds the entry mutex.
func (t *Tracker) pushHistoryLocked(p *UserPresence, room string, now time.Time) {
	p.History = append(p.History, HistoryEntry{Room: room, Left: now})
	if limit := t.cfg.HistoryLimit; limit > 0 && len(p.History) > limit {
		p.History = p.History[len(p.History)-limit:]
	}
}

// applyRoomStates mutates the per-room occupancy records for a committed
// transition. Serialized by roomsMu; callers hold the owning user's entry
// mutex so transitions for one user cannot apply out of order.
func (t *Tracker) applyRoomStates(change RoomChange, confidence float64) {
	t.roomsMu.Lock()
	defer t.roomsMu.Unlock()

	if change.OldRoom != "" {
		rs := t.roomStateLocked(change.OldRoom)
		rs.Occupied = false
		rs.Confidence = 0
		rs.LastSeen = change.Time
		rs.Source = change.Source
	}
	if change.NewRoom != "" {
		rs := t.roomStateLocked(change.NewRoom)
		rs.Occupied = true
		rs.Confidence = confidence
		rs.LastSeen = change.Time
		rs.Source = change.Source
	}
}

func (t *Tracker) roomStateLocked(roomID string) *RoomState {
	rs, ok := t.rooms[roomID]
	if !ok {
		rs = &RoomState{RoomID: roomID}
		t.rooms[roomID] = rs
	}
	return rs
}

// notify hands the committed change to the listener bus. Must never be
// called while a user or room lock is held.
func (t *Tracker) notify(change RoomChange) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(change)
}

// entry returns the record for the user, creating a vacant one on first use.
func (t *Tracker) entry(user string) *userEntry {
	t.mu.RLock()
	e, ok := t.users[user]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.users[user]; ok {
		return e
	}
	e = &userEntry{p: UserPresence{UserID: user}}
	t.users[user] = e
	if t.metrics != nil {
		t.metrics.TrackedUsers.Set(float64(len(t.users)))
	}
	return e
}

func (t *Tracker) dropped(reason string) {
	if t.metrics != nil {
		t.metrics.IncReadingsDropped(reason)
	}
}
