package gateway

// Client-to-gateway message types.
const (
	ClientMessageTypeVote = "vote"
)

// Gateway-to-client message types. Broadcast envelopes pass through verbatim
// and carry their own type field; these cover only gateway-originated frames.
const (
	ServerMessageTypeVoteAck  = "vote_ack"
	ServerMessageTypeError    = "error"
	ServerMessageTypePresence = "presence"
	ServerMessageTypeStatus   = "status"
)

// ClientMessage is one frame from a browser client.
type ClientMessage struct {
	Type string       `json:"type"`
	Vote *VoteMessage `json:"vote,omitempty"`
}

// VoteMessage carries one vote submission.
type VoteMessage struct {
	QuestionID  string  `json:"question_id"`
	Value       string  `json:"value"`
	Reason      *string `json:"reason,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	LockedIn    bool    `json:"locked_in"`
}

// ServerMessage is one gateway-originated frame to a browser client.
type ServerMessage struct {
	Type         string `json:"type"`
	QuestionID   string `json:"question_id,omitempty"`
	Message      string `json:"message,omitempty"`
	Participants int    `json:"participants,omitempty"`
	Status       string `json:"status,omitempty"`
}
