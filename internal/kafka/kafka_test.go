package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votecore/internal/model"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader 依次返回预置消息，之后阻塞到 ctx 取消
type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &fakeReader{msgs: ch}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestPublishBallotCastKeysByElection(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	castAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, p.PublishBallotCast(context.Background(), &model.BallotCastEvent{
		ElectionID:   "E1",
		Municipality: "Kathmandu",
		CastAt:       castAt,
	}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "E1", string(w.msgs[0].Key))

	var event model.BallotCastEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, "Kathmandu", event.Municipality)
	assert.True(t, event.CastAt.Equal(castAt))
	assert.NotContains(t, string(w.msgs[0].Value), "voter")
}

func TestPublishBallotCastWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{writer: &fakeWriter{err: boom}}

	err := p.PublishBallotCast(context.Background(), &model.BallotCastEvent{ElectionID: "E1"})
	assert.ErrorIs(t, err, boom)
}

func TestConsumerHandlesAndCommits(t *testing.T) {
	event := func(id string) []byte {
		data, _ := json.Marshal(model.BallotCastEvent{ElectionID: id})
		return data
	}
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: event("E1")},
		kafka.Message{Offset: 2, Value: []byte("not json")},
		kafka.Message{Offset: 3, Value: event("FAIL")},
		kafka.Message{Offset: 4, Value: event("E2")},
	)
	c := newConsumer([]messageReader{reader})

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{})
	c.StartConsuming(func(_ context.Context, e *model.BallotCastEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.ElectionID)
		if len(seen) == 3 {
			close(done)
		}
		if e.ElectionID == "FAIL" {
			return errors.New("cache unavailable")
		}
		return nil
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not process messages")
	}
	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Stop())

	assert.Equal(t, []string{"E1", "FAIL", "E2"}, seen)
	// 失败的消息不提交，无法解析的消息跳过并提交
	assert.Equal(t, []int64{1, 2, 4}, reader.commits())
	assert.True(t, reader.closed)
}
