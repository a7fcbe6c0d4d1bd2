package game

import "encoding/json"

// Inbound message types. The gateway dispatch switch over these is the
// single place client input enters the session core.
const (
	MsgCreateRoom  = "createRoom"
	MsgJoinRoom    = "joinRoom"
	MsgLeaveRoom   = "leave-room"
	MsgKickPlayer  = "kick-player"
	MsgStartGame   = "startGame"
	MsgSelectWord  = "select-word"
	MsgMessage     = "message"
	MsgSendDrawing = "send-drawing"
	MsgClearBoard  = "clear-board"
)

// Outbound event types.
const (
	EvtRoomCreated    = "roomCreated"
	EvtRoomJoined     = "roomJoined"
	EvtUpdateUsers    = "updateUsers"
	EvtPlayersUpdate  = "players-update"
	EvtSetPhase       = "setPhase"
	EvtTimeUpdate     = "timeUpdate"
	EvtWordHint       = "wordHint"
	EvtMessage        = "message"
	EvtCorrectGuess   = "correctGuess"
	EvtCloseGuess     = "closeGuess"
	EvtRoundEnded     = "roundEnded"
	EvtUpdateScores   = "updateScores"
	EvtKicked         = "kicked"
	EvtCreatorChanged = "creator-changed"
	EvtRateLimited    = "rateLimited"
	EvtError          = "error"
	EvtReceiveDrawing = "receive-drawing"
	EvtClearBoard     = "clear-board"
)

// WireMessage is the JSON envelope used in both directions on the socket.
type WireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type CreateRoomPayload struct {
	Username string `json:"username"`
	UserID   string `json:"userId,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	UserID   string `json:"userId,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type KickPlayerPayload struct {
	TargetID string `json:"targetConnectionId"`
	RoomID   string `json:"roomId"`
}

type StartGamePayload struct {
	RoomID string `json:"roomId"`
}

type SelectWordPayload struct {
	Word string `json:"word"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Stroke struct {
	Color  string  `json:"color,omitempty"`
	Width  int     `json:"width"`
	Points []Point `json:"points"`
}

type DrawingPayload struct {
	Strokes []Stroke `json:"strokes"`
}

// UserInfo is the member view sent in updateUsers / players-update.
type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type PhasePayload struct {
	Phase      string `json:"phase"`
	Word       string `json:"word,omitempty"`
	WordHint   string `json:"wordHint,omitempty"`
	WordLength int    `json:"wordLength,omitempty"`
	Drawer     string `json:"drawer,omitempty"`
	Time       int    `json:"time,omitempty"`
}

// ScoreEntry marshals as the [username, score] pair the client expects.
type ScoreEntry struct {
	Username string
	Score    int
}

func (se ScoreEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{se.Username, se.Score})
}

// makeEvent builds an outbound frame. Payload marshalling of our own
// types cannot fail; a nil frame is returned on the impossible path so
// callers can skip the send.
func makeEvent(eventType string, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil
		}
		raw = b
	}
	frame, err := json.Marshal(WireMessage{Type: eventType, Data: raw})
	if err != nil {
		return nil
	}
	return frame
}
