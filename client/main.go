// Command client is a terminal client for the quiz server, useful for
// playing a live match by hand.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"nhooyr.io/websocket"

	"github.com/wfunc/quizarena/network"
)

// game is the client-side view of the current room.
type game struct {
	mu        sync.Mutex
	userID    string
	roomID    string
	index     int
	questions []network.QuestionView
	invites   map[string]network.InviteData
}

func send(ctx context.Context, c *websocket.Conn, msgID uint16, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageBinary, frame)
}

func main() {
	addr := pflag.String("url", "ws://localhost:8080/ws", "server websocket URL")
	userID := pflag.String("user", "", "user id to register as")
	name := pflag.String("name", "", "display name")
	pflag.Parse()
	if *userID == "" {
		log.Fatal("--user is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, _, err := websocket.Dial(dialCtx, *addr, nil)
	cancel()
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "bye")

	g := &game{userID: *userID, invites: make(map[string]network.InviteData)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.readLoop(ctx, c)
	}()
	go heartbeat(ctx, c)

	if err := send(ctx, c, network.MsgTypeRegister, network.Register{UserID: *userID}); err != nil {
		log.Fatalf("Register failed: %v", err)
	}
	fmt.Println("commands: join <category> <count> | cancel | invite <user> <category> <count> | accept <id> | reject <id> | answer <n> | quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := g.command(ctx, c, *name, strings.Fields(line)); err != nil {
				if errors.Is(err, errQuit) {
					return
				}
				fmt.Println("error:", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

func (g *game) command(ctx context.Context, c *websocket.Conn, name string, args []string) error {
	if len(args) == 0 {
		return nil
	}
	count := func(i int) int {
		if len(args) <= i {
			return 5
		}
		n, _ := strconv.Atoi(args[i])
		return n
	}

	switch args[0] {
	case "quit", "exit":
		return errQuit
	case "join":
		if len(args) < 2 {
			return fmt.Errorf("usage: join <category> [count]")
		}
		return send(ctx, c, network.MsgTypeJoinLobby, network.JoinLobby{UserID: g.userID, Name: name, Category: args[1], QuestionCount: count(2)})
	case "cancel":
		return send(ctx, c, network.MsgTypeCancelSearch, struct{}{})
	case "invite":
		if len(args) < 3 {
			return fmt.Errorf("usage: invite <user> <category> [count]")
		}
		return send(ctx, c, network.MsgTypeSendInvite, network.SendInvite{FromID: g.userID, FromName: name, ToID: args[1], Category: args[2], QuestionCount: count(3)})
	case "accept", "reject":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s <inviteId>", args[0])
		}
		g.mu.Lock()
		data, ok := g.invites[args[1]]
		delete(g.invites, args[1])
		g.mu.Unlock()
		if !ok {
			data = network.InviteData{InviteID: args[1]}
		}
		return send(ctx, c, network.MsgTypeInviteResponse, network.InviteResponse{Accepted: args[0] == "accept", InviteData: data, AcceptorName: name})
	case "answer", "a":
		if len(args) < 2 {
			return fmt.Errorf("usage: answer <option>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		g.mu.Lock()
		if g.roomID == "" {
			g.mu.Unlock()
			return fmt.Errorf("not in a game")
		}
		sub := network.SubmitScore{
			RoomID:               g.roomID,
			UserID:               g.userID,
			AnswerIndex:          n,
			IsFinal:              g.index == len(g.questions)-1,
			CurrentQuestionIndex: g.index,
		}
		g.mu.Unlock()
		return send(ctx, c, network.MsgTypeSubmitScore, sub)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func heartbeat(ctx context.Context, c *websocket.Conn) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := send(ctx, c, network.MsgTypeHeartbeat, struct{}{}); err != nil {
				return
			}
		}
	}
}

func (g *game) readLoop(ctx context.Context, c *websocket.Conn) {
	for {
		_, raw, err := c.Read(ctx)
		if err != nil {
			log.Println("Read error:", err)
			return
		}
		p, err := network.Parse(raw)
		if err != nil {
			log.Printf("Received invalid packet of size %d", len(raw))
			continue
		}
		g.handle(p)
	}
}

func (g *game) handle(p *network.Packet) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch p.MsgID {
	case network.MsgTypeGameStart:
		var ev network.GameStartEvent
		if json.Unmarshal(p.Data, &ev) != nil {
			break
		}
		g.roomID, g.index, g.questions = ev.RoomID, ev.CurrentQuestionIndex, ev.Questions
		fmt.Printf("game %s started (%s), players: %v\n", ev.RoomID, ev.Category, ev.Players)
		g.printQuestion()
		return
	case network.MsgTypeNextQuestion:
		var ev network.NextQuestionEvent
		if json.Unmarshal(p.Data, &ev) != nil {
			break
		}
		g.index = ev.NextIndex
		g.printQuestion()
		return
	case network.MsgTypeLiveGameOver:
		g.roomID, g.questions = "", nil
	case network.MsgTypeInviteReceived:
		var ev network.InviteReceivedEvent
		if json.Unmarshal(p.Data, &ev) == nil {
			g.invites[ev.InviteID] = ev.InviteData
		}
	}
	fmt.Printf("<- %d %s\n", p.MsgID, p.Data)
}

func (g *game) printQuestion() {
	if g.index >= len(g.questions) {
		return
	}
	q := g.questions[g.index]
	fmt.Printf("Q%d/%d: %s\n", g.index+1, len(g.questions), q.Text)
	for i, opt := range q.Options {
		fmt.Printf("  %d) %s\n", i, opt)
	}
}
