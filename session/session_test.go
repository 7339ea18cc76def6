package session

import (
	"net"
	"testing"
	"time"

	"github.com/wfunc/quizarena/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	sent []uint16
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	if _, exists = manager.Get(sessionID); exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByUserID(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.Bind("u100", "")

	sess2 := NewSession("session2", &MockConnection{})
	sess2.Bind("u200", "")

	sess3 := NewSession("session3", &MockConnection{})
	sess3.Bind("u100", "")

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	if got := len(manager.GetByUserID("u100")); got != 2 {
		t.Errorf("Expected 2 sessions for u100, got %d", got)
	}
	if got := len(manager.GetByUserID("u200")); got != 1 {
		t.Errorf("Expected 1 session for u200, got %d", got)
	}
	if got := len(manager.GetByUserID("u300")); got != 0 {
		t.Errorf("Expected 0 sessions for u300, got %d", got)
	}

	sess3.MarkClosed()
	if got := len(manager.GetByUserID("u100")); got != 1 {
		t.Errorf("Closed sessions should not be returned, got %d", got)
	}
}

func TestManager_Alive(t *testing.T) {
	manager := NewManager()
	sess := NewSession("s1", &MockConnection{})
	manager.Add(sess)

	if !manager.Alive("s1") {
		t.Fatal("Expected fresh session to be alive")
	}
	sess.MarkClosed()
	if manager.Alive("s1") {
		t.Error("Expected closed session to be reported dead")
	}
	if manager.Alive("missing") {
		t.Error("Expected unknown session to be reported dead")
	}
}

func TestSession_BindAndRoom(t *testing.T) {
	sess := NewSession("s1", &MockConnection{})
	sess.Bind("u1", "")
	if sess.Name() != "u1" {
		t.Errorf("Expected name to fall back to user id, got %q", sess.Name())
	}
	sess.Bind("u1", "Yusuf")
	if sess.Name() != "Yusuf" {
		t.Errorf("Expected name Yusuf, got %q", sess.Name())
	}

	sess.SetRoomID("room-a")
	sess.ClearRoom("room-b")
	if sess.RoomID() != "room-a" {
		t.Fatal("ClearRoom with a different id must not unbind")
	}
	sess.ClearRoom("room-a")
	if sess.RoomID() != "" {
		t.Error("Expected room binding to be cleared")
	}
}
