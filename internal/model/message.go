package model

type Performative string

const (
	Inform  Performative = "INFORM"
	Request Performative = "REQUEST"
	Propose Performative = "PROPOSE"
)

// AgentMessage travels from a sender's outbox to a recipient's inbox during
// the commit phase of the cycle it was dispatched in.
type AgentMessage struct {
	ID           string       `json:"id"`
	From         int          `json:"from"`
	To           int          `json:"to"`
	Performative Performative `json:"performative"`
	Topic        string       `json:"topic"`
	Content      any          `json:"content,omitempty"`
	SentAt       int64        `json:"sent_at"`
}

func (m AgentMessage) IsBroadcast() bool { return m.To == Broadcast }
