package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"files_manager/server/fileman/domain"
)

type published struct {
	queue string
	msg   amqp.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if exchange != "" {
		return errors.New("unexpected exchange")
	}
	p.msgs = append(p.msgs, published{queue: key, msg: msg})
	return nil
}

type fakeAcker struct {
	acks, nacks int
	requeued    bool
}

func (a *fakeAcker) Ack(uint64, bool) error { a.acks++; return nil }
func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}
func (a *fakeAcker) Reject(uint64, bool) error { return nil }

func rawDelivery(t *testing.T, acker *fakeAcker, body any, attempt any) amqp.Delivery {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	headers := amqp.Table{}
	if attempt != nil {
		headers[attemptHeader] = attempt
	}
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Headers: headers, Body: raw}
}

func TestAMQPEnqueuePublishesPersistentJob(t *testing.T) {
	pub := &fakePublisher{}
	q := newAMQPQueue(pub, DefaultRetryPolicy(), 1)

	if err := q.Enqueue(context.Background(), domain.ThumbnailJob{FileID: "f1"}); !errors.Is(err, domain.ErrMissingUserID) {
		t.Fatalf("invalid job: got %v", err)
	}
	if err := q.Enqueue(context.Background(), domain.ThumbnailJob{FileID: "f1", UserID: "u1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	m := pub.msgs[0]
	if m.queue != JobsQueue || m.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publish: %+v", m)
	}
	if string(m.msg.Body) != `{"fileId":"f1","userId":"u1"}` {
		t.Fatalf("payload: %s", m.msg.Body)
	}
	if attemptFromHeaders(m.msg.Headers) != 1 {
		t.Fatalf("attempt header: %v", m.msg.Headers)
	}
}

func TestAMQPConsumeDecodesAndAcks(t *testing.T) {
	pub := &fakePublisher{}
	q := newAMQPQueue(pub, DefaultRetryPolicy(), 1)
	ch := make(chan amqp.Delivery, 1)
	q.deliveries = ch
	acker := &fakeAcker{}
	ch <- rawDelivery(t, acker, domain.ThumbnailJob{FileID: "f1", UserID: "u1"}, int32(2))

	d, err := q.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if d.Job().FileID != "f1" || d.Attempt() != 2 {
		t.Fatalf("delivery: %+v attempt %d", d.Job(), d.Attempt())
	}
	if err := d.Ack(); err != nil || acker.acks != 1 {
		t.Fatalf("Ack: err=%v acks=%d", err, acker.acks)
	}
}

func TestAMQPConsumeDeadLettersMalformedPayload(t *testing.T) {
	pub := &fakePublisher{}
	q := newAMQPQueue(pub, DefaultRetryPolicy(), 1)
	ch := make(chan amqp.Delivery, 2)
	q.deliveries = ch
	badAcker := &fakeAcker{}
	goodAcker := &fakeAcker{}
	ch <- rawDelivery(t, badAcker, []byte("{not json"), nil)
	ch <- rawDelivery(t, goodAcker, domain.ThumbnailJob{FileID: "f2", UserID: "u2"}, nil)

	d, err := q.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if d.Job().FileID != "f2" {
		t.Fatalf("expected the valid job, got %+v", d.Job())
	}
	if badAcker.acks != 1 || len(pub.msgs) != 1 || pub.msgs[0].queue != DeadQueue {
		t.Fatalf("malformed payload not dead-lettered: acks=%d msgs=%+v", badAcker.acks, pub.msgs)
	}
}

func TestAMQPFailRoutesThroughRetryQueue(t *testing.T) {
	pub := &fakePublisher{}
	q := newAMQPQueue(pub, RetryPolicy{MaxAttempts: 2, BaseDelay: 1500 * time.Millisecond}, 1)
	acker := &fakeAcker{}
	d, ok := q.accept(rawDelivery(t, acker, domain.ThumbnailJob{FileID: "f1", UserID: "u1"}, int32(1)))
	if !ok {
		t.Fatalf("accept rejected a valid job")
	}

	if err := d.Fail(domain.ErrFileNotFound); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	m := pub.msgs[0]
	if m.queue != RetryQueue || m.msg.Expiration != "1500" {
		t.Fatalf("retry publish: %+v", m)
	}
	if attemptFromHeaders(m.msg.Headers) != 2 || m.msg.Headers[lastErrorHeader] != domain.ErrFileNotFound.Error() {
		t.Fatalf("retry headers: %v", m.msg.Headers)
	}
	if acker.acks != 1 {
		t.Fatalf("original delivery not acked")
	}

	last, _ := q.accept(rawDelivery(t, &fakeAcker{}, domain.ThumbnailJob{FileID: "f1", UserID: "u1"}, int32(2)))
	_ = last.Fail(domain.ErrFileNotFound)
	if pub.msgs[1].queue != DeadQueue {
		t.Fatalf("exhausted job went to %s", pub.msgs[1].queue)
	}
}

func TestAMQPFailRequeuesWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	q := newAMQPQueue(pub, DefaultRetryPolicy(), 1)
	acker := &fakeAcker{}
	d, _ := q.accept(rawDelivery(t, acker, domain.ThumbnailJob{FileID: "f1", UserID: "u1"}, nil))

	if err := d.Fail(errors.New("boom")); err == nil {
		t.Fatalf("expected publish error")
	}
	if acker.acks != 0 || acker.nacks != 1 || !acker.requeued {
		t.Fatalf("expected requeue nack, got %+v", acker)
	}
}

func TestAMQPConsumeReportsClosedChannel(t *testing.T) {
	q := newAMQPQueue(&fakePublisher{}, DefaultRetryPolicy(), 1)
	ch := make(chan amqp.Delivery)
	close(ch)
	q.deliveries = ch
	if _, err := q.Consume(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v", err)
	}
}

func TestAttemptFromHeaders(t *testing.T) {
	cases := map[string]struct {
		in   any
		want int
	}{
		"missing": {nil, 1},
		"int16":   {int16(3), 3},
		"int64":   {int64(4), 4},
		"string":  {"5", 5},
		"zero":    {int32(0), 1},
	}
	for name, tc := range cases {
		headers := amqp.Table{}
		if tc.in != nil {
			headers[attemptHeader] = tc.in
		}
		if got := attemptFromHeaders(headers); got != tc.want {
			t.Fatalf("%s: got %d want %d", name, got, tc.want)
		}
	}
}
