package protocol

import "time"

// AudioFrame carries PCM captured by a listening node to a remote recognizer.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
	// Cancel ends the session without a transcript.
	Cancel     bool   `json:"cancel,omitempty"`
}

// Transcript is recognizer output for one session.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// UIEvent mirrors one observer call for remote presentation layers.
type UIEvent struct {
	Kind      string    `json:"kind"`
	Enabled   *bool     `json:"enabled,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AuthorizationRequest struct {
	Service string `json:"service"`
}

type AuthorizationReply struct {
	Status string `json:"status"`
}

// NodeCapability advertises one thing a listening node can do.
type NodeCapability struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type NodeAnnounce struct {
	NodeID       string           `json:"node_id"`
	Capabilities []NodeCapability `json:"capabilities"`
	Timestamp    time.Time        `json:"timestamp"`
}

type NodeHeartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix  = "audio.frame"
	SubjectTranscriptPrefix  = "stt.text"
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectUIEventPrefix     = "listen.ui"
	SubjectAuthorization     = "auth.speech.request"
	SubjectNodeAnnounce      = "listen.node.announce"
	SubjectNodeHeartbeat     = "listen.node.heartbeat"

	UIEventButton = "button"
	UIEventGuide  = "guide"
	UIEventResult = "result"
)

func AudioFrameSubject(sessionID string) string {
	return SubjectAudioFramePrefix + "." + sessionID
}
