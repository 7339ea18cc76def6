package network

import (
	"errors"
	"testing"
)

func packetFor(t *testing.T, msgID uint16, payload string) *Packet {
	t.Helper()
	raw, err := Encode(msgID, []byte(payload))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func TestEncodeParseFraming(t *testing.T) {
	raw, err := Encode(MsgTypeJoinLobby, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(raw) != 4+7 {
		t.Fatalf("Expected frame length 11, got %d", len(raw))
	}
	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.MsgID != MsgTypeJoinLobby || string(p.Data) != `{"a":1}` || p.Length != 7 {
		t.Errorf("Unexpected packet %+v", p)
	}

	if _, err := Parse(raw[:3]); err == nil {
		t.Error("Expected short buffer error for truncated header")
	}
	if _, err := Parse(raw[:8]); err == nil {
		t.Error("Expected short buffer error for truncated payload")
	}
}

func TestEncode_TooLarge(t *testing.T) {
	big := make([]byte, 70000)
	if _, err := Encode(MsgTypeGameStart, big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecode_JoinLobby(t *testing.T) {
	msg, err := Decode(packetFor(t, MsgTypeJoinLobby, `{"userId":"u1","name":"Amina","category":"quran","questionCount":5}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	join, ok := msg.(JoinLobby)
	if !ok {
		t.Fatalf("Expected JoinLobby, got %T", msg)
	}
	if join.UserID != "u1" || join.Category != "quran" || join.QuestionCount != 5 {
		t.Errorf("Unexpected payload %+v", join)
	}
}

func TestDecode_SubmitScore(t *testing.T) {
	msg, err := Decode(packetFor(t, MsgTypeSubmitScore, `{"roomId":"r1","userId":"u1","answerIndex":2,"isFinal":false,"currentQuestionIndex":0}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	sub := msg.(SubmitScore)
	if sub.AnswerIndex != 2 || sub.CurrentQuestionIndex != 0 {
		t.Errorf("Unexpected payload %+v", sub)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		msgID   uint16
		payload string
		want    error
	}{
		{"unknown id", 999, `{}`, ErrUnknownMessage},
		{"not json", MsgTypeRegister, `nope`, ErrMalformed},
		{"empty register", MsgTypeRegister, ``, ErrMalformed},
		{"missing user", MsgTypeRegister, `{"userId":"  "}`, ErrMalformed},
		{"unknown field", MsgTypeRegister, `{"userId":"u1","admin":true}`, ErrMalformed},
		{"bare score rejected", MsgTypeSubmitScore, `{"roomId":"r","userId":"u","score":5,"currentQuestionIndex":0}`, ErrMalformed},
		{"zero count", MsgTypeJoinLobby, `{"userId":"u1","category":"quran","questionCount":0}`, ErrMalformed},
		{"self invite", MsgTypeSendInvite, `{"fromId":"u1","toId":"u1","category":"fiqh","questionCount":5}`, ErrMalformed},
		{"negative index", MsgTypeSubmitScore, `{"roomId":"r","userId":"u","answerIndex":0,"currentQuestionIndex":-1}`, ErrMalformed},
		{"bad answer", MsgTypeSubmitScore, `{"roomId":"r","userId":"u","answerIndex":-2,"currentQuestionIndex":0}`, ErrMalformed},
		{"invite without id", MsgTypeInviteResponse, `{"accepted":true,"inviteData":{"fromId":"u1"}}`, ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(packetFor(t, tc.msgID, tc.payload))
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecode_HeartbeatIgnoresPayload(t *testing.T) {
	msg, err := Decode(packetFor(t, MsgTypeHeartbeat, ""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := msg.(Heartbeat); !ok {
		t.Errorf("Expected Heartbeat, got %T", msg)
	}
}
