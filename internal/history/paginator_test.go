package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/marketchat/internal/domain"
)

type call struct {
	roomID string
	before string
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []call
	pages map[string][]domain.Message
	err   error
	block chan struct{}
}

func (f *fakeFetcher) RoomHistory(ctx context.Context, roomID, before string) ([]domain.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{roomID, before})
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[before], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func page(ids ...string) []domain.Message {
	out := make([]domain.Message, len(ids))
	for i, id := range ids {
		out[i] = domain.Message{ID: id, SenderID: "2", Text: id, Timestamp: time.Unix(int64(i), 0)}
	}
	return out
}

func TestFetchInitialAndOlder(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]domain.Message{
		"":   page("31", "32", "33"),
		"31": page("1", "2", "3"),
	}}
	p := New(f, zerolog.Nop())
	ctx := context.Background()

	first, err := p.FetchInitial(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", first.RoomID)
	assert.Len(t, first.Messages, 3)
	assert.True(t, p.HasMore("r1"))

	older, ok, err := p.FetchOlderThan(ctx, "r1", "31")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, older.Messages, 3)
	assert.True(t, p.HasMore("r1"))

	empty, ok, err := p.FetchOlderThan(ctx, "r1", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, empty.Messages)
	assert.False(t, p.HasMore("r1"))

	_, ok, err = p.FetchOlderThan(ctx, "r1", "1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, f.callCount())

	assert.Equal(t, []call{{"r1", ""}, {"r1", "31"}, {"r1", "1"}}, f.calls)
}

func TestFetchInitialResetsExhaustedRoom(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]domain.Message{"": page("1")}}
	p := New(f, zerolog.Nop())
	ctx := context.Background()

	_, _, err := p.FetchOlderThan(ctx, "r1", "1")
	require.NoError(t, err)
	require.False(t, p.HasMore("r1"))

	_, err = p.FetchInitial(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, p.HasMore("r1"))
}

func TestFetchOlderThan_NoOpWhileLoading(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string][]domain.Message{"10": page("1")},
		block: make(chan struct{}),
	}
	p := New(f, zerolog.Nop())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok, err := p.FetchOlderThan(ctx, "r1", "10")
		assert.NoError(t, err)
		assert.True(t, ok)
	}()

	require.Eventually(t, func() bool { return p.Loading("r1") }, time.Second, 5*time.Millisecond)

	_, ok, err := p.FetchOlderThan(ctx, "r1", "10")
	require.NoError(t, err)
	assert.False(t, ok)

	// другая комната не блокируется
	assert.False(t, p.Loading("r2"))

	close(f.block)
	<-done
	assert.False(t, p.Loading("r1"))
	assert.Equal(t, 1, f.callCount())
}

func TestFetchErrors(t *testing.T) {
	cause := errors.New("boom")
	f := &fakeFetcher{err: cause}
	p := New(f, zerolog.Nop())
	ctx := context.Background()

	pg, err := p.FetchInitial(ctx, "r1")
	require.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "r1", pg.RoomID)
	assert.Empty(t, pg.Messages)

	_, ok, err := p.FetchOlderThan(ctx, "r1", "5")
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrFetch)
	assert.True(t, p.HasMore("r1"))
	assert.False(t, p.Loading("r1"))
}
