package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FrameType тип фрейма сокета
type FrameType string

const (
	TypeChatMessage FrameType = "chat_message"
	TypeError       FrameType = "error"
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnsupportedFrame = errors.New("unsupported frame type")
)

// OutboundFrame сообщение клиента в сокет
type OutboundFrame struct {
	Type     FrameType `json:"type"`
	Message  string    `json:"message,omitempty"`
	File     string    `json:"file,omitempty"`
	FileName string    `json:"file_name,omitempty"`
}

// NewChatFrame собирает chat_message фрейм
func NewChatFrame(text, fileURL, fileName string) OutboundFrame {
	return OutboundFrame{
		Type:     TypeChatMessage,
		Message:  text,
		File:     fileURL,
		FileName: fileName,
	}
}

func (f OutboundFrame) Empty() bool {
	return strings.TrimSpace(f.Message) == "" && f.File == ""
}

// InboundFrame проверенный фрейм от сервера
type InboundFrame struct {
	Type      FrameType `json:"type,omitempty"`
	ID        FlexID    `json:"id,omitempty"`
	RoomID    FlexID    `json:"room_id,omitempty"`
	SenderID  FlexID    `json:"sender_id"`
	Message   string    `json:"message,omitempty"`
	File      string    `json:"file,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	Timestamp FlexTime  `json:"timestamp"`
}

// ParseInbound разбирает и валидирует входящий фрейм.
// Дальше транспорта сырые фреймы не уходят.
func ParseInbound(data []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if frame.Type != "" && frame.Type != TypeChatMessage {
		return InboundFrame{}, fmt.Errorf("%w: %s", ErrUnsupportedFrame, frame.Type)
	}

	if frame.SenderID == "" {
		return InboundFrame{}, fmt.Errorf("%w: missing sender_id", ErrMalformedFrame)
	}

	if strings.TrimSpace(frame.Message) == "" && frame.File == "" {
		return InboundFrame{}, fmt.Errorf("%w: empty message", ErrMalformedFrame)
	}

	frame.Type = TypeChatMessage
	return frame, nil
}

// ServerFrame то, что сервер рассылает участникам комнаты
type ServerFrame struct {
	Type      FrameType `json:"type"`
	ID        string    `json:"id,omitempty"`
	RoomID    string    `json:"room_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	File      string    `json:"file,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	Timestamp FlexTime  `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}
