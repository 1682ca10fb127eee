package messenger

import (
	"context"

	"github.com/thereayou/marketchat/internal/protocol"
	"github.com/thereayou/marketchat/internal/transport"
)

// Session то, что мессенджеру нужно от живого соединения
type Session interface {
	Send(frame protocol.OutboundFrame) error
	Close() error
	State() transport.State
	OnClose(h transport.CloseHandler)
}

// Dialer открывает сессию к комнате
type Dialer interface {
	Open(ctx context.Context, roomID, token string, handlers ...transport.FrameHandler) (Session, error)
}

type transportDialer struct {
	d *transport.Dialer
}

// FromTransport оборачивает transport.Dialer
func FromTransport(d *transport.Dialer) Dialer {
	return transportDialer{d: d}
}

func (t transportDialer) Open(ctx context.Context, roomID, token string, handlers ...transport.FrameHandler) (Session, error) {
	s, err := t.d.Open(ctx, roomID, token, handlers...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
