package messenger

import (
	"errors"
	"time"

	"github.com/thereayou/marketchat/internal/domain"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/store"
)

// reconnectLoop включается только через Reconnect.Enabled.
// Переоткрывает ту же комнату с экспоненциальной задержкой, пока она остаётся выбранной.
func (m *Messenger) reconnectLoop(gen uint64, roomID string) {
	cfg := m.reconnect
	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < delay {
		maxDelay = delay
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}

	logger := m.logger.With().Str(logging.FieldRoomID, roomID).Logger()

	for attempt := 1; attempt <= attempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !m.current(gen) {
			return
		}

		sess, err := m.dialer.Open(m.ctx, roomID, m.token, m.frameHandler(gen))
		if err == nil {
			if !m.install(gen, roomID, sess) {
				return
			}
			logger.Info().Int("attempt", attempt).Msg("room socket reconnected")
			m.catchUp(gen, roomID)
			return
		}

		if errors.Is(err, domain.ErrAuth) {
			logger.Warn().Err(err).Msg("reconnect stopped: auth rejected")
			m.notify(Update{Kind: UpdateConnection, RoomID: roomID, Err: err})
			return
		}

		logger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect attempt failed")
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	logger.Warn().Int("attempts", attempts).Msg("reconnect gave up")
}

// catchUp подтягивает свежую страницу, чтобы не потерять сообщения, пришедшие во время обрыва
func (m *Messenger) catchUp(gen uint64, roomID string) {
	msgs, err := m.backend.RoomHistory(m.ctx, roomID, "")
	if err != nil {
		m.logger.Warn().Err(err).Str(logging.FieldRoomID, roomID).Msg("catch-up fetch failed")
		return
	}
	if !m.current(gen) {
		return
	}

	added, err := m.store.MergeLatestPage(roomID, msgs)
	if err != nil && !errors.Is(err, store.ErrStaleRoom) {
		m.logger.Warn().Err(err).Msg("catch-up merge failed")
		return
	}
	if added > 0 {
		m.notify(Update{Kind: UpdateLog, RoomID: roomID})
	}
}
