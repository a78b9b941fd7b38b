package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/invalidation"
)

type fakeCache struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	calls     [][]string
}

func (f *fakeCache) InvalidateCells(_ context.Context, cells []string) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), cells...))
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return 0, errors.New("boom")
	}
	return len(cells), nil
}

func (f *fakeCache) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMapper struct {
	lastRes atomic.Int64
}

func (m *fakeMapper) CellsCoveringBBox(_ model.BBox, res int) (model.Cells, error) {
	m.lastRes.Store(int64(res))
	return model.Cells{"852a1003fffffff", "852a1007fffffff"}, nil
}

func (m *fakeMapper) CellsCoveringPolygon(_ model.Polygon, res int) (model.Cells, error) {
	m.lastRes.Store(int64(res))
	return model.Cells{"852a1003fffffff"}, nil
}

type sess struct {
	ctx    context.Context
	claims map[string][]int32
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return s.claims }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "osm-changes" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(t *testing.T, id string) []byte {
	t.Helper()
	ev := invalidation.Event{
		ID: id, Version: 1, Op: "update", TS: time.Now().UTC(),
		BBox: &invalidation.BBox{X1: 18.06, Y1: 59.32, X2: 18.07, Y2: 59.33, SRID: "EPSG:4326"},
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func newConsumerForTest(fc *fakeCache, m *fakeMapper) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "osm-changes", GroupID: "g", DedupeSize: 16}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), fc, m, 5)
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	fc := &fakeCache{}
	m := &fakeMapper{}
	c := newConsumerForTest(fc, m)

	g := c.handler()
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Topic: "osm-changes", Partition: 0, Offset: 10, Value: eventBytes(t, "a")}
	ch <- &sarama.ConsumerMessage{Topic: "osm-changes", Partition: 0, Offset: 11, Value: eventBytes(t, "b")}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if fc.callCount() != 2 {
		t.Fatalf("InvalidateCells calls=%d want 2", fc.callCount())
	}
	if got := m.lastRes.Load(); got != 5 {
		t.Fatalf("mapped at res %d want index res 5", got)
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	fc := &fakeCache{}
	fc.failFirst.Store(true)
	c := newConsumerForTest(fc, &fakeMapper{})
	ctx := context.Background()

	msg := &sarama.ConsumerMessage{Topic: "osm-changes", Partition: 0, Offset: 5, Value: eventBytes(t, "retry")}
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := c.handler().ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
	if fc.callCount() != 2 {
		t.Fatalf("a failed apply must not be remembered; calls=%d", fc.callCount())
	}
}

func TestFailure_StopsClaimWithoutMarking(t *testing.T) {
	fc := &fakeCache{}
	fc.failFirst.Store(true)
	c := newConsumerForTest(fc, &fakeMapper{})

	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Offset: 1, Value: eventBytes(t, "x")}
	ch <- &sarama.ConsumerMessage{Offset: 2, Value: eventBytes(t, "y")}
	close(ch)

	if err := c.handler().ConsumeClaim(s, &claim{msgs: ch}); err == nil {
		t.Fatal("expected claim to end with the apply error")
	}
	if len(s.marked) != 0 {
		t.Fatalf("nothing should be marked; got %v", s.marked)
	}
}

func TestRedelivery_SkippedByID(t *testing.T) {
	fc := &fakeCache{}
	c := newConsumerForTest(fc, &fakeMapper{})
	msg := &sarama.ConsumerMessage{Offset: 7, Value: eventBytes(t, "same")}

	for range 3 {
		if err := c.ProcessOne(context.Background(), msg); err != nil {
			t.Fatalf("ProcessOne: %v", err)
		}
	}
	if fc.callCount() != 1 {
		t.Fatalf("calls=%d want 1", fc.callCount())
	}
}

func TestPoisonMessages_AcknowledgedWithoutWork(t *testing.T) {
	fc := &fakeCache{}
	c := newConsumerForTest(fc, &fakeMapper{})

	for _, v := range [][]byte{
		[]byte("{not json"),
		[]byte(`{"version":1,"op":"update","ts":"2025-10-26T12:00:00Z"}`),
	} {
		if err := c.ProcessOne(context.Background(), &sarama.ConsumerMessage{Value: v}); err != nil {
			t.Fatalf("poison message should be acknowledged: %v", err)
		}
	}
	if fc.callCount() != 0 {
		t.Fatalf("calls=%d want 0", fc.callCount())
	}
}

func TestGeometryEvent_UsesPolygonCover(t *testing.T) {
	fc := &fakeCache{}
	c := newConsumerForTest(fc, &fakeMapper{})
	body := []byte(`{"version":1,"op":"insert","ts":"2025-10-26T12:00:00Z",
		"geometry":{"type":"Polygon","coordinates":[[[18,59],[18.1,59],[18.1,59.1],[18,59.1],[18,59]]]}}`)

	if err := c.ProcessOne(context.Background(), &sarama.ConsumerMessage{Value: body}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if fc.callCount() != 1 || len(fc.calls[0]) != 1 {
		t.Fatalf("unexpected calls: %v", fc.calls)
	}
}

func TestMultiPartition_Parallel_NoCrossOrdering(t *testing.T) {
	fc := &fakeCache{}
	c := newConsumerForTest(fc, &fakeMapper{})
	g := c.handler()
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Value: eventBytes(t, "p0-1")}
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 2, Value: eventBytes(t, "p0-2")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 1, Value: eventBytes(t, "p1-1")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 2, Value: eventBytes(t, "p1-2")}
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

func TestReadiness_FollowsAssignment(t *testing.T) {
	c := newConsumerForTest(&fakeCache{}, &fakeMapper{})
	if ok, _ := c.Readiness(); ok {
		t.Fatal("consumer should not be ready before a session starts")
	}

	g := c.handler()
	s := &sess{ctx: t.Context(), claims: map[string][]int32{"osm-changes": {0, 2}}}
	_ = g.Setup(s)
	ok, parts := c.Readiness()
	if !ok || len(parts) != 2 {
		t.Fatalf("ready=%v parts=%v", ok, parts)
	}

	_ = g.Cleanup(s)
	if ok, _ := c.Readiness(); ok {
		t.Fatal("consumer should not be ready after cleanup")
	}
}
