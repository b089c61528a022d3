package clicks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kosench/go-link-resolver/internal/model"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]model.Click
	err     error
}

func (f *fakeStore) RecordClicks(ctx context.Context, clicks []model.Click) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	batch := make([]model.Click, len(clicks))
	copy(batch, clicks)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func (f *fakeStore) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func click(code string) model.Click {
	return model.Click{LinkID: "id-" + code, ShortCode: code, ClickedAt: time.Now()}
}

func TestChannelRecorder_DropsWhenFull(t *testing.T) {
	r := NewChannelRecorder(2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Record(click("abc"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record() blocked on a full buffer")
	}

	if got := len(r.Events()); got != 2 {
		t.Errorf("buffered events = %d, want 2", got)
	}
}

func TestChannelRecorder_RecordAfterClose(t *testing.T) {
	r := NewChannelRecorder(4)
	r.Record(click("a"))

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	r.Record(click("b"))

	var got []model.Click
	for c := range r.Events() {
		got = append(got, c)
	}
	if len(got) != 1 || got[0].ShortCode != "a" {
		t.Errorf("events after close = %+v", got)
	}
}

func TestConsumer_FlushesFullBatch(t *testing.T) {
	store := &fakeStore{}
	events := make(chan model.Click, 10)
	c := NewConsumer(store, events, ConsumerConfig{BatchSize: 3, FlushInterval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		events <- click("b")
	}

	deadline := time.After(2 * time.Second)
	for store.total() < 3 {
		select {
		case <-deadline:
			t.Fatalf("flushed %d events, want 3", store.total())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
	if store.batchCount() != 1 {
		t.Errorf("batches = %d, want 1", store.batchCount())
	}
}

func TestConsumer_FlushesOnInterval(t *testing.T) {
	store := &fakeStore{}
	events := make(chan model.Click, 10)
	c := NewConsumer(store, events, ConsumerConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	events <- click("t")

	deadline := time.After(2 * time.Second)
	for store.total() < 1 {
		select {
		case <-deadline:
			t.Fatal("interval flush did not happen")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConsumer_FlushesRemainderOnClose(t *testing.T) {
	store := &fakeStore{}
	rec := NewChannelRecorder(10)
	c := NewConsumer(store, rec.Events(), ConsumerConfig{BatchSize: 100, FlushInterval: time.Hour}, zap.NewNop())

	rec.Record(click("x"))
	rec.Record(click("y"))
	rec.Close()

	c.Run(context.Background())

	if store.total() != 2 {
		t.Errorf("flushed %d events, want 2", store.total())
	}
}

func TestConsumer_DrainsOnCancel(t *testing.T) {
	store := &fakeStore{}
	events := make(chan model.Click, 10)
	events <- click("p")
	events <- click("q")

	c := NewConsumer(store, events, ConsumerConfig{BatchSize: 100, FlushInterval: time.Hour}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.Run(ctx)

	if store.total() != 2 {
		t.Errorf("flushed %d events, want 2", store.total())
	}
}

func TestConsumer_StoreFailureIsAbsorbed(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	rec := NewChannelRecorder(10)
	c := NewConsumer(store, rec.Events(), ConsumerConfig{BatchSize: 1, FlushInterval: time.Hour}, zap.NewNop())

	rec.Record(click("z"))
	rec.Close()

	c.Run(context.Background())

	if store.total() != 0 {
		t.Errorf("unexpected persisted events: %d", store.total())
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaRecorder_EncodesClick(t *testing.T) {
	w := &fakeWriter{}
	r := &KafkaRecorder{writer: w, logger: zap.NewNop()}

	in := model.Click{
		LinkID:        "link-1",
		ShortCode:     "abc123",
		ClickedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ClickMetadata: model.ClickMetadata{Referrer: "https://ref.example", IP: "10.0.0.1"},
	}
	r.Record(in)

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "link-1" {
		t.Errorf("key = %s, want link-1", w.msgs[0].Key)
	}

	var out model.Click
	if err := json.Unmarshal(w.msgs[0].Value, &out); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if out.ShortCode != in.ShortCode || out.Referrer != in.Referrer || !out.ClickedAt.Equal(in.ClickedAt) {
		t.Errorf("decoded = %+v, want %+v", out, in)
	}
}

func TestKafkaRecorder_WriteErrorIsAbsorbed(t *testing.T) {
	r := &KafkaRecorder{writer: &fakeWriter{err: errors.New("broker down")}, logger: zap.NewNop()}
	r.Record(click("k"))
}

type fakeReader struct {
	msgs []kafka.Message
	pos  int
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if r.pos >= len(r.msgs) {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[r.pos]
	r.pos++
	return m, nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaSource_FeedsConsumer(t *testing.T) {
	valid, _ := json.Marshal(click("k1"))
	reader := &fakeReader{msgs: []kafka.Message{
		{Value: valid},
		{Value: []byte("not json")},
		{Value: valid},
	}}
	src := newKafkaSource(reader, 10, zap.NewNop())
	store := &fakeStore{}
	c := NewConsumer(store, src.Events(), ConsumerConfig{BatchSize: 100, FlushInterval: time.Hour}, zap.NewNop())

	go src.Run(context.Background())
	c.Run(context.Background())

	if store.total() != 2 {
		t.Errorf("persisted %d events, want 2", store.total())
	}
}
