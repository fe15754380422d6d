// Package protocol defines the websocket wire format shared by the server
// and clients.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/cardroomlabs/cardroom/internal/engine"
)

// MessageType discriminates the payload carried in a Message.
type MessageType string

const (
	// Client to server.
	TypeJoinTable  MessageType = "join_table"
	TypeLeaveTable MessageType = "leave_table"
	TypeAction     MessageType = "action"
	TypeListTables MessageType = "list_tables"
	TypePing       MessageType = "ping"

	// Server to client.
	TypeWelcome     MessageType = "welcome"
	TypeTableJoined MessageType = "table_joined"
	TypeTableLeft   MessageType = "table_left"
	TypeTableState  MessageType = "table_state"
	TypeTableList   MessageType = "table_list"
	TypeTurn        MessageType = "turn"
	TypeSettlement  MessageType = "settlement"
	TypeError       MessageType = "error"
	TypePong        MessageType = "pong"
)

// Message is the wire envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage wraps a payload in an envelope stamped with the current time.
func NewMessage(t MessageType, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Data: raw, Timestamp: time.Now().UTC()}, nil
}

// MustMessage is NewMessage for payload types that cannot fail to marshal.
func MustMessage(t MessageType, data any) *Message {
	m, err := NewMessage(t, data)
	if err != nil {
		panic(err)
	}
	return m
}

// Client to server payloads.

type JoinTableData struct {
	TableID string `json:"table_id"`
	Seat    *int   `json:"seat,omitempty"`
	BuyIn   int    `json:"buy_in"`
}

type LeaveTableData struct {
	TableID string `json:"table_id"`
}

type ActionData struct {
	TableID string `json:"table_id"`
	Action  string `json:"action"`
	Amount  int    `json:"amount,omitempty"`
}

// Server to client payloads.

type WelcomeData struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Game     string `json:"game"`
}

type TableJoinedData struct {
	TableID string `json:"table_id"`
	Seat    int    `json:"seat"`
}

type TableLeftData struct {
	TableID string `json:"table_id"`
	Refund  int    `json:"refund"`
}

// TableStateData carries the recipient's masked view of the table.
type TableStateData struct {
	engine.TableView
}

type TableSummary struct {
	TableID  string `json:"table_id"`
	Kind     string `json:"kind"`
	Seats    int    `json:"seats"`
	Occupied int    `json:"occupied"`
	InHand   bool   `json:"in_hand"`
}

type TableListData struct {
	Tables []TableSummary `json:"tables"`
}

// TurnData announces whose turn it is and when it expires.
type TurnData struct {
	TableID   string `json:"table_id"`
	Seat      int    `json:"seat"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// SettlementData reports the outcome of a finished hand.
type SettlementData struct {
	TableID    string        `json:"table_id"`
	HandID     string        `json:"hand_id"`
	Board      []string      `json:"board,omitempty"`
	Results    []SettledSeat `json:"results"`
	HouseDelta int           `json:"house_delta,omitempty"`
}

type SettledSeat struct {
	PlayerID string `json:"player_id"`
	Seat     int    `json:"seat"`
	Delta    int    `json:"delta"`
	Rank     string `json:"rank,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
