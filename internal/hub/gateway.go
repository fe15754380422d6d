package hub

import (
	"sync"

	"github.com/cardroomlabs/cardroom/internal/protocol"
)

// The broadcast gateway fans session state out to every member connection.
// Each recipient gets a view masked for their own identity; delivery order
// within one table matches the order the deltas were produced, guaranteed by
// the per-table order mutex plus the per-connection ordered send channels.

// tableOrder returns the table's broadcast ordering mutex.
func (h *Hub) tableOrder(tableID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	mu, ok := h.order[tableID]
	if !ok {
		mu = &sync.Mutex{}
		h.order[tableID] = mu
	}
	return mu
}

// recipients snapshots the table's members that currently hold a live
// connection.
func (h *Hub) recipients(tableID string) []client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]client, 0, len(h.members[tableID]))
	for playerID := range h.members[tableID] {
		if c, ok := h.conns[playerID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// broadcastState sends each member their own masked view of the table.
func (h *Hub) broadcastState(tableID string) {
	session, err := h.registry.Get(tableID)
	if err != nil {
		return
	}

	ord := h.tableOrder(tableID)
	ord.Lock()
	defer ord.Unlock()

	deadline, armed := h.turns.Deadline(tableID)
	for _, c := range h.recipients(tableID) {
		view := session.View(c.PlayerID())
		if armed {
			view.TurnDeadlineMS = deadline.UnixMilli()
		}
		msg, err := protocol.NewMessage(protocol.TypeTableState, protocol.TableStateData{TableView: view})
		if err != nil {
			h.logger.Error("encode table state", "table", tableID, "error", err)
			return
		}
		if err := c.Send(msg); err != nil {
			h.logger.Debug("drop state for dead connection", "player", c.PlayerID(), "table", tableID)
		}
	}
}

// broadcast delivers one message to every member connection.
func (h *Hub) broadcast(tableID string, msg *protocol.Message) {
	ord := h.tableOrder(tableID)
	ord.Lock()
	defer ord.Unlock()

	for _, c := range h.recipients(tableID) {
		if err := c.Send(msg); err != nil {
			h.logger.Debug("drop message for dead connection", "player", c.PlayerID(), "table", tableID)
		}
	}
}

// sendState delivers the current masked view to a single connection, used
// when a player rebinds mid-hand.
func (h *Hub) sendState(c client, tableID string) {
	session, err := h.registry.Get(tableID)
	if err != nil {
		return
	}

	ord := h.tableOrder(tableID)
	ord.Lock()
	defer ord.Unlock()

	view := session.View(c.PlayerID())
	if deadline, armed := h.turns.Deadline(tableID); armed {
		view.TurnDeadlineMS = deadline.UnixMilli()
	}
	msg, err := protocol.NewMessage(protocol.TypeTableState, protocol.TableStateData{TableView: view})
	if err != nil {
		return
	}
	_ = c.Send(msg)
}
