package network

// Client -> server
const (
	MsgTypeHeartbeat      = 1
	MsgTypeRegister       = 100
	MsgTypeJoinLobby      = 101
	MsgTypeCancelSearch   = 102
	MsgTypeSendInvite     = 103
	MsgTypeInviteResponse = 104
	MsgTypeSubmitScore    = 201
)

// Server -> client
const (
	MsgTypeRegistered           = 110
	MsgTypeSearchCancelled      = 111
	MsgTypeWaiting              = 301
	MsgTypeGameStart            = 302
	MsgTypeOpponentProgress     = 303
	MsgTypeNextQuestion         = 304
	MsgTypeOpponentDisconnected = 305
	MsgTypeLiveGameOver         = 306
	MsgTypeAnswerResult         = 307
	MsgTypeInviteReceived       = 401
	MsgTypeInviteRejected       = 402
	MsgTypeError                = 500
)

// Error codes carried by ErrorEvent.
const (
	ErrCodeMalformed      = "malformed"
	ErrCodeNotRegistered  = "not_registered"
	ErrCodeIdentity       = "identity_mismatch"
	ErrCodeAlreadyInRoom  = "already_in_room"
	ErrCodeNoRoom         = "room_not_found"
	ErrCodeInviteGone     = "invite_not_found"
	ErrCodeOpponentGone   = "opponent_unavailable"
	ErrCodeMatchFailed    = "match_failed"
	ErrCodeUnknownMessage = "unknown_message"
)
