package api

import "strconv"

type (
	SessionDescription struct {
		Type string `json:"type"`
		Sdp  string `json:"sdp"`
	}
	IceCandidate struct {
		Candidate        string  `json:"candidate"`
		SdpMid           *string `json:"sdpMid,omitempty"`
		SdpMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
		UsernameFragment *string `json:"usernameFragment,omitempty"`
	}
	// Signal is a point-to-point setup message, addressed by player id
	// and filtered by the receiver.
	Signal struct {
		From      int                 `json:"from"`
		To        int                 `json:"to"`
		Sdp       *SessionDescription `json:"sdp,omitempty"`
		Candidate *IceCandidate       `json:"candidate,omitempty"`
	}
	IdAssignment struct {
		PresenceKey string `json:"presenceKey"`
		PlayerId    int    `json:"playerId"`
	}
	MapSelection struct {
		MapIndex   int `json:"mapIndex"`
		HumanCount int `json:"humanCount"`
		// PlayerIds are the seats of the match.
		PlayerIds []int `json:"playerIds,omitempty"`
	}
	GameEvent struct {
		Type     EventType `json:"type"`
		PlayerId int       `json:"playerId,omitempty"`
		Round    int       `json:"round,omitempty"`
		Winner   int       `json:"winner,omitempty"`
	}
	EventType string
)

const (
	EventRoundStart EventType = "round_start"
	EventRoundOver  EventType = "round_over"
	EventGameOver   EventType = "game_over"
	EventPlayerLeft EventType = "player_left"
	EventAborted    EventType = "match_aborted"
)

// Key returns a deduplication key of the candidate.
func (c IceCandidate) Key() string {
	key := c.Candidate
	if c.SdpMid != nil {
		key += "|" + *c.SdpMid
	}
	if c.SdpMLineIndex != nil {
		key += "|" + strconv.Itoa(int(*c.SdpMLineIndex))
	}
	return key
}
