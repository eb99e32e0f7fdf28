package party

import (
	"time"
)

// VideoInfo describes the shared video a party is watching.
type VideoInfo struct {
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Participant is one live connection's membership record in a party.
type Participant struct {
	ConnID   string
	Username string

	// VideoURL is the last URL this participant reported via video-info.
	// Empty means the participant has not reported a video yet.
	VideoURL string
}

// ParticipantView is the client-facing projection of a participant.
// Synced is derived: the participant's reported URL matches the party's
// shared video descriptor.
type ParticipantView struct {
	Username string `json:"username"`
	VideoURL string `json:"videoUrl,omitempty"`
	Synced   bool   `json:"synced"`
}

// Party is a group of connections synchronizing one shared playback state.
// All access goes through the Registry; Party itself carries no lock.
type Party struct {
	Code         string
	PasswordHash []byte
	Persistent   bool
	Video        *VideoInfo
	CreatedAt    time.Time

	// LastActivity is stamped when the party becomes empty; the idle
	// reaper uses it to expire persistent parties.
	LastActivity time.Time

	participants map[string]*Participant
	order        []string // conn IDs in join order
}

func (p *Party) addParticipant(pt *Participant) {
	p.participants[pt.ConnID] = pt
	p.order = append(p.order, pt.ConnID)
}

func (p *Party) removeParticipant(connID string) {
	if _, ok := p.participants[connID]; !ok {
		return
	}
	delete(p.participants, connID)
	for i, id := range p.order {
		if id == connID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *Party) empty() bool {
	return len(p.participants) == 0
}

// views returns participant projections in join order with Synced computed
// against the current shared descriptor.
func (p *Party) views() []ParticipantView {
	out := make([]ParticipantView, 0, len(p.order))
	for _, id := range p.order {
		pt := p.participants[id]
		synced := pt.VideoURL != "" && p.Video != nil && pt.VideoURL == p.Video.URL
		out = append(out, ParticipantView{
			Username: pt.Username,
			VideoURL: pt.VideoURL,
			Synced:   synced,
		})
	}
	return out
}

// memberIDs returns the conn IDs of current participants in join order.
func (p *Party) memberIDs() []string {
	ids := make([]string, len(p.order))
	copy(ids, p.order)
	return ids
}
