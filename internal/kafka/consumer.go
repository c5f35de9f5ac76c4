package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when processing succeeded and the offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	log     *zap.SugaredLogger
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.SugaredLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, log: log, workers: workers}
}

// offsetTracker keeps per-partition fetch order so commits never run ahead of
// an unprocessed earlier message. Committing the frontier message covers every
// offset before it; a failed message stalls the frontier, and everything after
// it is redelivered on rebalance instead of being silently skipped.
type offsetTracker struct {
	mu   sync.Mutex
	pend map[int][]int64
	done map[int]map[int64]kafka.Message
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{
		pend: map[int][]int64{},
		done: map[int]map[int64]kafka.Message{},
	}
}

func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pend[m.Partition] = append(t.pend[m.Partition], m.Offset)
}

// markDone records a processed message and reports the new frontier: the
// latest message on its partition with no unprocessed predecessor.
func (t *offsetTracker) markDone(m kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dp := t.done[m.Partition]
	if dp == nil {
		dp = map[int64]kafka.Message{}
		t.done[m.Partition] = dp
	}
	dp[m.Offset] = m

	var front kafka.Message
	moved := false
	q := t.pend[m.Partition]
	for len(q) > 0 {
		dm, ok := dp[q[0]]
		if !ok {
			break
		}
		delete(dp, q[0])
		front, moved = dm, true
		q = q[1:]
	}
	t.pend[m.Partition] = q
	return front, moved
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	acks := make(chan kafka.Message, 1024)
	errs := make(chan error, c.workers)
	tr := newOffsetTracker()

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					errs <- err
					continue
				}
				acks <- m
			}
		}()
	}

	// single committer, so commits stay in fetch order per partition
	committed := make(chan struct{})
	go func() {
		defer close(committed)
		for m := range acks {
			cm, ok := tr.markDone(m)
			if !ok {
				continue
			}
			if err := c.r.CommitMessages(ctx, cm); err != nil && c.log != nil {
				c.log.Warnw("commit", "topic", c.r.Config().Topic, "err", err)
			}
		}
	}()

	finish := func(err error) error {
		close(jobs)
		wg.Wait()
		close(acks)
		<-committed
		return err
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// quiet exit on shutdown
			select {
			case <-ctx.Done():
				return finish(nil)
			default:
				return finish(err)
			}
		}
		tr.track(m)
		select {
		case jobs <- m:
		case <-ctx.Done():
			return finish(nil)
		}

		// non-blocking error drain so workers never deadlock
		select {
		case e := <-errs:
			if c.log != nil {
				c.log.Warnw("worker error", "topic", c.r.Config().Topic, "err", e)
			}
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}
