package websocket

import "time"

const (
	MessageTypeRanked  = "contacts_ranked"
	MessageTypeRefresh = "refresh"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
	MessageTypeError   = "error"
)

type Message struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Content   string `json:"content,omitempty"`
	ErrorCode string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type IncomingMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewRankedMessage(data any) *Message {
	return &Message{
		Type:      MessageTypeRanked,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(errMsg, code string) *Message {
	return &Message{
		Type:      MessageTypeError,
		Content:   errMsg,
		ErrorCode: code,
		Timestamp: time.Now().Unix(),
	}
}
