package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMessage = errors.New("unknown message type")
	ErrMalformed      = errors.New("malformed payload")
)

// Message is implemented by every client -> server payload.
type Message interface {
	MsgID() uint16
	Validate() error
}

type Heartbeat struct{}

type Register struct {
	UserID string `json:"userId"`
}

type JoinLobby struct {
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	QuestionCount int    `json:"questionCount"`
}

type CancelSearch struct{}

type SendInvite struct {
	FromID        string `json:"fromId"`
	FromName      string `json:"fromName"`
	ToID          string `json:"toId"`
	Category      string `json:"category"`
	QuestionCount int    `json:"questionCount"`
}

// InviteData is echoed back by the invitee for display; the server trusts InviteID only.
type InviteData struct {
	InviteID      string `json:"inviteId"`
	FromID        string `json:"fromId"`
	FromName      string `json:"fromName"`
	ToID          string `json:"toId"`
	Category      string `json:"category"`
	QuestionCount int    `json:"questionCount"`
}

type InviteResponse struct {
	Accepted     bool       `json:"accepted"`
	InviteData   InviteData `json:"inviteData"`
	AcceptorName string     `json:"acceptorName"`
}

// SubmitScore reports one answer. AnswerIndex -1 means the client timer expired.
type SubmitScore struct {
	RoomID               string `json:"roomId"`
	UserID               string `json:"userId"`
	AnswerIndex          int    `json:"answerIndex"`
	IsFinal              bool   `json:"isFinal"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
}

func (Heartbeat) MsgID() uint16      { return MsgTypeHeartbeat }
func (Register) MsgID() uint16       { return MsgTypeRegister }
func (JoinLobby) MsgID() uint16      { return MsgTypeJoinLobby }
func (CancelSearch) MsgID() uint16   { return MsgTypeCancelSearch }
func (SendInvite) MsgID() uint16     { return MsgTypeSendInvite }
func (InviteResponse) MsgID() uint16 { return MsgTypeInviteResponse }
func (SubmitScore) MsgID() uint16    { return MsgTypeSubmitScore }

func (Heartbeat) Validate() error    { return nil }
func (CancelSearch) Validate() error { return nil }

func (m Register) Validate() error {
	return required("userId", m.UserID)
}

func (m JoinLobby) Validate() error {
	if err := required("userId", m.UserID); err != nil {
		return err
	}
	if err := required("category", m.Category); err != nil {
		return err
	}
	if m.QuestionCount <= 0 {
		return fmt.Errorf("%w: questionCount must be positive", ErrMalformed)
	}
	return nil
}

func (m SendInvite) Validate() error {
	if err := required("fromId", m.FromID); err != nil {
		return err
	}
	if err := required("toId", m.ToID); err != nil {
		return err
	}
	if err := required("category", m.Category); err != nil {
		return err
	}
	if m.FromID == m.ToID {
		return fmt.Errorf("%w: cannot invite yourself", ErrMalformed)
	}
	if m.QuestionCount <= 0 {
		return fmt.Errorf("%w: questionCount must be positive", ErrMalformed)
	}
	return nil
}

func (m InviteResponse) Validate() error {
	return required("inviteData.inviteId", m.InviteData.InviteID)
}

func (m SubmitScore) Validate() error {
	if err := required("roomId", m.RoomID); err != nil {
		return err
	}
	if err := required("userId", m.UserID); err != nil {
		return err
	}
	if m.CurrentQuestionIndex < 0 {
		return fmt.Errorf("%w: currentQuestionIndex must not be negative", ErrMalformed)
	}
	if m.AnswerIndex < -1 {
		return fmt.Errorf("%w: answerIndex must be -1 or an option index", ErrMalformed)
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrMalformed, field)
	}
	return nil
}

// Decode maps a packet to its typed message. Unknown ids, unknown JSON fields
// and payloads failing Validate are rejected.
func Decode(packet *Packet) (Message, error) {
	var msg Message
	switch packet.MsgID {
	case MsgTypeHeartbeat:
		return Heartbeat{}, nil
	case MsgTypeCancelSearch:
		return CancelSearch{}, nil
	case MsgTypeRegister:
		var m Register
		if err := unmarshalStrict(packet.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case MsgTypeJoinLobby:
		var m JoinLobby
		if err := unmarshalStrict(packet.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case MsgTypeSendInvite:
		var m SendInvite
		if err := unmarshalStrict(packet.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case MsgTypeInviteResponse:
		var m InviteResponse
		if err := unmarshalStrict(packet.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case MsgTypeSubmitScore:
		var m SubmitScore
		if err := unmarshalStrict(packet.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, packet.MsgID)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// --- server -> client events ---

type RegisteredEvent struct {
	UserID string `json:"userId"`
}

type WaitingEvent struct {
	Category      string `json:"category"`
	QuestionCount int    `json:"questionCount"`
}

// QuestionView is a question as sent to clients; the correct index stays on the server.
type QuestionView struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type PlayerView struct {
	Name          string `json:"name"`
	WinningStreak int    `json:"winningStreak"`
}

type GameStartEvent struct {
	RoomID               string                `json:"roomId"`
	Category             string                `json:"category"`
	Questions            []QuestionView        `json:"questions"`
	Players              map[string]PlayerView `json:"players"`
	CurrentQuestionIndex int                   `json:"currentQuestionIndex"`
}

type OpponentProgressEvent struct {
	UserID  string `json:"userId"`
	Score   int    `json:"score"`
	IsFinal bool   `json:"isFinal"`
}

type AnswerResultEvent struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	CorrectIndex  int  `json:"correctIndex"`
	Score         int  `json:"score"`
}

type NextQuestionEvent struct {
	NextIndex int `json:"nextIndex"`
}

type OpponentDisconnectedEvent struct {
	UserID string `json:"userId"`
}

type LiveGameOverEvent struct {
	RoomID   string         `json:"roomId"`
	Scores   map[string]int `json:"scores"`
	WinnerID string         `json:"winnerId,omitempty"`
	IsTie    bool           `json:"isTie"`
	Outcome  string         `json:"outcome"`
}

type InviteReceivedEvent struct {
	InviteData
}

type InviteRejectedEvent struct {
	InviteID string `json:"inviteId"`
	ToID     string `json:"toId"`
	ByName   string `json:"byName,omitempty"`
}

type SearchCancelledEvent struct {
	Removed bool `json:"removed"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
