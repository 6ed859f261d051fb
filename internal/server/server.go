package server

import (
	"context"
	"log"

	"github.com/gorilla/websocket"
	"github.com/onlinex/onlinex/internal/database"
	"github.com/onlinex/onlinex/internal/stats"
)

const historyReplayLimit = 50

// Responder produces the agent reply for one inbound message. Satisfied by
// agent.ChatEngine.
type Responder interface {
	Respond(ctx context.Context, conv database.Conversation, input string) (string, error)
}

// ChatServer attaches websocket connections to the fanout hub and drives the
// room and agent message flows.
type ChatServer struct {
	log    *log.Logger
	db     database.OnlinexRepository
	hub    *Hub
	engine Responder
	stats  stats.StatsProvider
}

func NewChatServer(logger *log.Logger, db database.OnlinexRepository, hub *Hub,
	engine Responder, st stats.StatsProvider) *ChatServer {
	return &ChatServer{
		log:    logger,
		db:     db,
		hub:    hub,
		engine: engine,
		stats:  st,
	}
}

// ServeRoom runs a room-chat connection: recent messages are replayed to the
// new member, then every inbound frame is persisted and broadcast to the room
// as "sender: content", sender included. Blocks until the connection closes.
func (cs *ChatServer) ServeRoom(conn *websocket.Conn, room database.Room, senderName string) {
	client := NewClient(conn, cs.log)
	client.onFrame = func(text string) {
		cs.handleRoomFrame(room, senderName, text, client)
	}
	client.onClose = func() {
		cs.hub.Unregister(room.Code, client)
		cs.log.Printf("connection from %q left room %q", senderName, room.Code)
	}

	cs.hub.Register(room.Code, client)
	cs.replayHistory(room, client)

	go client.Write()
	client.Read()
}

func (cs *ChatServer) handleRoomFrame(room database.Room, senderName, text string, client *Client) {
	msg := database.RoomMessage{RoomId: room.Id, Sender: senderName, Content: text}
	if _, err := cs.db.CreateRoomMessage(msg); err != nil {
		cs.log.Printf("persist message in room %q: %v", room.Code, err)
		client.queueMessage([]byte("error: message could not be delivered"))
		return
	}

	cs.hub.Broadcast(room.Code, []byte(senderName+": "+text))
	cs.stats.Incr(stats.MessagesBroadcast)
}

// replayHistory queues the most recent room messages, oldest first, so a
// joining member sees the conversation so far. The store returns them newest
// first, so iterate backwards.
func (cs *ChatServer) replayHistory(room database.Room, client *Client) {
	messages, err := cs.db.GetRoomMessages(room.Id, historyReplayLimit)
	if err != nil {
		cs.log.Printf("load history for room %q: %v", room.Code, err)
		return
	}

	for i := len(messages) - 1; i >= 0; i-- {
		client.queueMessage([]byte(messages[i].Sender + ": " + messages[i].Content))
	}
}

// ServeAgent runs an agent-chat connection: each inbound frame goes through
// the chat engine and the reply comes back on the same connection. Engine
// failures surface as an error frame on that exchange only; the connection
// stays up. Blocks until the connection closes.
func (cs *ChatServer) ServeAgent(conn *websocket.Conn, conv database.Conversation) {
	client := NewClient(conn, cs.log)
	client.onFrame = func(text string) {
		cs.handleAgentFrame(conv, text, client)
	}
	client.onClose = func() {
		cs.hub.Unregister(conv.ExternalId, client)
		cs.log.Printf("agent session %q disconnected", conv.ExternalId)
	}

	cs.hub.Register(conv.ExternalId, client)

	go client.Write()
	client.Read()
}

func (cs *ChatServer) handleAgentFrame(conv database.Conversation, text string, client *Client) {
	reply, err := cs.engine.Respond(context.Background(), conv, text)
	if err != nil {
		cs.log.Printf("agent session %q: %v", conv.ExternalId, err)
		if reply == "" {
			client.queueMessage([]byte("error: the agent could not respond, try again"))
			return
		}
	}

	cs.hub.Send(conv.ExternalId, []byte(reply))
	cs.stats.Incr(stats.MessagesBroadcast)
}
