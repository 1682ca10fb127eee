package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/config"
	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/protocol"
	"github.com/thereayou/marketchat/pkg/auth"
)

// Config параметры сокета клиента
type Config struct {
	BaseURL          string
	PingPeriod       time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	SendQueueSize    int
}

func ConfigFrom(baseURL string, ws config.WebSocketConfig) Config {
	return Config{
		BaseURL:          baseURL,
		PingPeriod:       ws.PingPeriod,
		PongWait:         ws.PongWait,
		WriteWait:        ws.WriteWait,
		HandshakeTimeout: ws.HandshakeTimeout,
		MaxMessageSize:   ws.MaxMessageSize,
		SendQueueSize:    ws.SendQueueSize,
	}
}

func (c Config) withDefaults() Config {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512 * 1024
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	return c
}

// Dialer открывает сессии к комнатам
type Dialer struct {
	cfg    Config
	ws     *websocket.Dialer
	logger zerolog.Logger
	now    func() time.Time
}

func NewDialer(cfg Config, logger zerolog.Logger) *Dialer {
	cfg = cfg.withDefaults()
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: logging.Component(logger, "transport"),
		now:    time.Now,
	}
}

// Open подключается к комнате. Токен передаётся параметром URL, а не заголовком.
// Отмена ctx прерывает подключение, пока сессия ещё в состоянии Connecting.
func (d *Dialer) Open(ctx context.Context, roomID, token string, handlers ...FrameHandler) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	if auth.IsExpired(token, d.now()) {
		return nil, fmt.Errorf("%w: token expired", domain.ErrAuth)
	}

	target, err := d.socketURL(roomID, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	logger := d.logger.With().Str(logging.FieldRoomID, roomID).Logger()
	s := newSession(roomID, d.cfg, logger)
	for _, h := range handlers {
		s.OnFrame(h)
	}

	conn, resp, err := d.ws.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.abort()
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected with status %d", domain.ErrAuth, resp.StatusCode)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnection, ctxErr)
		}
		logger.Warn().Err(err).Msg("dial failed")
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	s.start(conn)
	logger.Debug().Msg("session open")
	return s, nil
}

func (d *Dialer) socketURL(roomID, token string) (string, error) {
	if roomID == "" {
		return "", fmt.Errorf("empty room id")
	}

	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported socket scheme %q", base.Scheme)
	}

	base.Path = strings.TrimSuffix(base.Path, "/") + protocol.PathSocket + roomID
	base.RawPath = ""
	q := base.Query()
	q.Set(protocol.QueryToken, token)
	base.RawQuery = q.Encode()
	return base.String(), nil
}
