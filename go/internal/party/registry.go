package party

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Registry owns every Party and Participant record. All mutation of shared
// party state goes through it under a single lock; callers never see the
// raw party map.
type Registry struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	parties map[string]*Party
	// members maps a connection ID to the code of the party it belongs
	// to. A connection is a member of at most one party at any instant.
	members map[string]string
}

// NewRegistry creates an empty registry. The clock drives creation and
// idle-expiry timestamps; pass clockwork.NewRealClock() in production.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:   clock,
		parties: make(map[string]*Party),
		members: make(map[string]string),
	}
}

// CreateResult is the outcome of CreateParty.
type CreateResult struct {
	Code        string
	HasPassword bool
	Persistent  bool
}

// CreateParty generates a fresh code, registers the creator as the first
// participant, and stores a bcrypt hash if a password was supplied. The
// creating connection is first removed from any party it already belongs
// to; RemovedFrom (if non empty) names that party so the caller can
// broadcast its membership change.
func (r *Registry) CreateParty(connID, username, password string, persistent bool) (CreateResult, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removedFrom := r.detachLocked(connID)

	code := generateCode()
	for _, exists := r.parties[code]; exists; _, exists = r.parties[code] {
		code = generateCode()
	}

	var hash []byte
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			// bcrypt only errors on invalid cost or oversized input;
			// treat an unhashable password as no password.
			log.Error().Err(err).Msg("failed to hash party password")
		} else {
			hash = h
		}
	}

	now := r.clock.Now()
	p := &Party{
		Code:         code,
		PasswordHash: hash,
		Persistent:   persistent,
		CreatedAt:    now,
		LastActivity: now,
		participants: make(map[string]*Participant),
	}
	p.addParticipant(&Participant{ConnID: connID, Username: username})
	r.parties[code] = p
	r.members[connID] = code

	log.Info().
		Str("party_code", code).
		Str("connection_id", connID).
		Bool("persistent", persistent).
		Bool("has_password", hash != nil).
		Msg("party created")

	return CreateResult{Code: code, HasPassword: hash != nil, Persistent: persistent}, removedFrom
}

// JoinResult is the outcome of a successful JoinParty.
type JoinResult struct {
	Code         string
	Participants []ParticipantView
	Video        *VideoInfo

	// RemovedFrom names the party the connection previously belonged to,
	// if any, so the caller can broadcast that party's membership change.
	RemovedFrom string
}

// JoinParty adds the connection to the named party. Unknown and malformed
// codes both fail with ErrPartyNotFound; a protected party with a missing
// or non-matching password fails with ErrWrongPassword and mutates
// nothing. On success the connection is removed from its previous party
// first; a join naming the party it is already in refreshes the snapshot
// without touching membership.
func (r *Registry) JoinParty(code, connID, username, password string) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	normalized, ok := NormalizeCode(code)
	if !ok {
		return JoinResult{}, ErrPartyNotFound
	}
	p, ok := r.parties[normalized]
	if !ok {
		return JoinResult{}, ErrPartyNotFound
	}
	if p.PasswordHash != nil {
		if bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(password)) != nil {
			return JoinResult{}, ErrWrongPassword
		}
	}

	// Re-joining the current party is a refresh, not a move. Detaching
	// first would empty the party and, for a sole non-persistent member,
	// delete it out from under the join.
	var removedFrom string
	if current, ok := r.members[connID]; !ok || current != normalized {
		removedFrom = r.detachLocked(connID)

		p.addParticipant(&Participant{ConnID: connID, Username: username})
		r.members[connID] = normalized

		log.Info().
			Str("party_code", normalized).
			Str("connection_id", connID).
			Int("participants", len(p.participants)).
			Msg("participant joined")
	}

	var video *VideoInfo
	if p.Video != nil {
		v := *p.Video
		video = &v
	}
	return JoinResult{
		Code:         normalized,
		Participants: p.views(),
		Video:        video,
		RemovedFrom:  removedFrom,
	}, nil
}

// LeaveParty removes the connection's participant record from its current
// party. It is idempotent: leaving while not in a party reports ok=false
// and changes nothing. The returned code names the party left so the
// caller can broadcast its membership change.
func (r *Registry) LeaveParty(connID string) (code string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = r.detachLocked(connID)
	return code, code != ""
}

// detachLocked removes connID from its party, if any, and runs empty-party
// cleanup. Returns the code of the party left, or "" — note the code may
// name a party that no longer exists if cleanup deleted it.
func (r *Registry) detachLocked(connID string) string {
	code, ok := r.members[connID]
	if !ok {
		return ""
	}
	delete(r.members, connID)

	p, ok := r.parties[code]
	if !ok {
		return ""
	}
	p.removeParticipant(connID)

	log.Info().
		Str("party_code", code).
		Str("connection_id", connID).
		Int("participants", len(p.participants)).
		Msg("participant left")

	if p.empty() {
		r.cleanupEmptyLocked(p)
	}
	return code
}

// cleanupEmptyLocked deletes a newly empty party immediately unless it is
// persistent; persistent parties are stamped and left for the idle reaper.
func (r *Registry) cleanupEmptyLocked(p *Party) {
	if !p.Persistent {
		delete(r.parties, p.Code)
		log.Info().Str("party_code", p.Code).Msg("empty party deleted")
		return
	}
	p.LastActivity = r.clock.Now()
	log.Info().Str("party_code", p.Code).Msg("persistent party idle, kept for reaper")
}

// RecordVideoInfo sets the acting participant's reported video URL and
// updates the party's shared descriptor (last writer wins). Fails with
// ErrNotInParty when the connection has no active membership.
func (r *Registry) RecordVideoInfo(connID string, video VideoInfo) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.members[connID]
	if !ok {
		return "", ErrNotInParty
	}
	p, ok := r.parties[code]
	if !ok {
		// Stale membership pointing at a deleted party; drop it rather
		// than dereference a gone record.
		delete(r.members, connID)
		return "", ErrNotInParty
	}
	pt, ok := p.participants[connID]
	if !ok {
		delete(r.members, connID)
		return "", ErrNotInParty
	}
	pt.VideoURL = video.URL

	v := video
	p.Video = &v

	log.Debug().
		Str("party_code", code).
		Str("connection_id", connID).
		Str("url", video.URL).
		Msg("shared video descriptor updated")
	return code, nil
}

// ListParticipants returns the participant views of a party in join order.
func (r *Registry) ListParticipants(code string) ([]ParticipantView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[code]
	if !ok {
		return nil, false
	}
	return p.views(), true
}

// MemberIDs returns the connection IDs of a party's current participants.
// The relay uses this to resolve broadcast targets without touching party
// internals.
func (r *Registry) MemberIDs(code string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.parties[code]
	if !ok {
		return nil
	}
	return p.memberIDs()
}

// PartyOf returns the code of the party the connection belongs to.
func (r *Registry) PartyOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.members[connID]
	return code, ok
}

// UsernameOf returns the display name the connection registered with.
func (r *Registry) UsernameOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.members[connID]
	if !ok {
		return "", false
	}
	p, ok := r.parties[code]
	if !ok {
		return "", false
	}
	pt, ok := p.participants[connID]
	if !ok {
		return "", false
	}
	return pt.Username, true
}

// ReapIdle deletes every persistent empty party whose idle time exceeds
// threshold. Returns the number of parties reaped.
func (r *Registry) ReapIdle(threshold time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	reaped := 0
	for code, p := range r.parties {
		if !p.empty() {
			continue
		}
		// Only persistent parties survive becoming empty, but guard
		// anyway: a non-persistent empty party here is a bug upstream.
		if now.Sub(p.LastActivity) > threshold {
			delete(r.parties, code)
			reaped++
			log.Info().
				Str("party_code", code).
				Dur("idle", now.Sub(p.LastActivity)).
				Msg("idle party reaped")
		}
	}
	return reaped
}

// Stats is a point-in-time snapshot for the /stats endpoint.
type Stats struct {
	Parties      int `json:"parties"`
	Participants int `json:"participants"`
}

// Snapshot returns current registry counters.
func (r *Registry) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Parties:      len(r.parties),
		Participants: len(r.members),
	}
}
