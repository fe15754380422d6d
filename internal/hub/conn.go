package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cardroomlabs/cardroom/internal/engine"
	"github.com/cardroomlabs/cardroom/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// ErrConnClosed is returned by Send once the connection is gone.
var ErrConnClosed = websocket.ErrCloseSent

// Conn is one authenticated websocket connection. The identity and realm
// are fixed at upgrade time; the read pump feeds the hub and the write pump
// drains the buffered send channel in order.
type Conn struct {
	ws     *websocket.Conn
	hub    *Hub
	id     protocol.WelcomeData
	realm  engine.GameKind
	send   chan *protocol.Message
	logger *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConn wraps an upgraded websocket for an authenticated player. The
// welcome message is queued first so it precedes any table state pushed
// during the bind.
func NewConn(hub *Hub, ws *websocket.Conn, playerID, name string, realm engine.GameKind, logger *log.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:  ws,
		hub: hub,
		id: protocol.WelcomeData{
			PlayerID: playerID,
			Name:     name,
			Game:     string(realm),
		},
		realm:  realm,
		send:   make(chan *protocol.Message, 256),
		logger: logger.WithPrefix("conn").With("player", playerID),
		ctx:    ctx,
		cancel: cancel,
	}
	c.send <- protocol.MustMessage(protocol.TypeWelcome, c.id)
	return c
}

func (c *Conn) PlayerID() string   { return c.id.PlayerID }
func (c *Conn) PlayerName() string { return c.id.Name }

// Done closes when the connection is torn down.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// Start begins the pumps, draining everything queued during the bind.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.ws.Close()
	})
	return err
}

// Send queues a message for the write pump. A full buffer means the client
// has stopped reading; the connection is closed rather than blocking the
// broadcast path.
func (c *Conn) Send(msg *protocol.Message) error {
	defer func() {
		if r := recover(); r != nil {
			// The send channel closed mid-select during shutdown.
			c.logger.Debug("send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, closing connection")
		_ = c.Close()
		return ErrConnClosed
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.OnDisconnect(c)
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg protocol.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Error("write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) handleMessage(msg *protocol.Message) {
	c.logger.Debug("received", "type", msg.Type)

	switch msg.Type {
	case protocol.TypeJoinTable:
		var data protocol.JoinTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, engine.E(engine.KindIllegalAction, "malformed join payload"))
			return
		}
		seat := -1
		if data.Seat != nil {
			seat = *data.Seat
		}
		idx, err := c.hub.Join(c.id.PlayerID, c.id.Name, c.realm, data.TableID, seat, data.BuyIn)
		if err != nil {
			c.sendError(msg, err)
			return
		}
		c.reply(msg, protocol.TypeTableJoined, protocol.TableJoinedData{
			TableID: data.TableID,
			Seat:    idx,
		})

	case protocol.TypeLeaveTable:
		var data protocol.LeaveTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, engine.E(engine.KindIllegalAction, "malformed leave payload"))
			return
		}
		refund, err := c.hub.Leave(c.id.PlayerID, data.TableID)
		if err != nil {
			c.sendError(msg, err)
			return
		}
		c.reply(msg, protocol.TypeTableLeft, protocol.TableLeftData{
			TableID: data.TableID,
			Refund:  refund,
		})

	case protocol.TypeAction:
		var data protocol.ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, engine.E(engine.KindIllegalAction, "malformed action payload"))
			return
		}
		if err := c.hub.Act(c.id.PlayerID, data.TableID, engine.Action(data.Action), data.Amount); err != nil {
			c.sendError(msg, err)
		}
		// No direct reply; the session broadcasts the new state.

	case protocol.TypeListTables:
		c.reply(msg, protocol.TypeTableList, protocol.TableListData{
			Tables: c.hub.ListTables(c.realm),
		})

	case protocol.TypePing:
		c.reply(msg, protocol.TypePong, nil)

	default:
		c.sendError(msg, engine.E(engine.KindIllegalAction, "unknown message type %q", msg.Type))
	}
}

// reply sends a response carrying the request id of the inbound message.
func (c *Conn) reply(req *protocol.Message, t protocol.MessageType, data any) {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		c.logger.Error("encode reply", "type", t, "error", err)
		return
	}
	msg.RequestID = req.RequestID
	_ = c.Send(msg)
}

func (c *Conn) sendError(req *protocol.Message, err error) {
	c.reply(req, protocol.TypeError, protocol.ErrorData{
		Code:    string(engine.KindOf(err)),
		Message: err.Error(),
	})
}
