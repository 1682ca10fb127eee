package messenger

func (m *Messenger) notify(u Update) {
	if m.onUpdate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Str("kind", u.Kind.String()).Msg("update callback panicked")
		}
	}()
	m.onUpdate(u)
}
