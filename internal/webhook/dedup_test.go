package webhook_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/trackersync/internal/webhook"
)

// fakeKV is an in-memory SET NX with expiry driven by a manual clock.
type fakeKV struct {
	mu      sync.Mutex
	now     time.Time
	expires map[string]time.Time
	err     error
	ttls    []time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{now: time.Unix(1700000000, 0), expires: map[string]time.Time{}}
}

func (f *fakeKV) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	f.ttls = append(f.ttls, expiration)
	if exp, ok := f.expires[key]; ok && f.now.Before(exp) {
		return redis.NewBoolResult(false, nil)
	}
	f.expires[key] = f.now.Add(expiration)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.expires[k]; ok {
			delete(f.expires, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeKV) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

var _ = Describe("RedisDeduplicator", func() {
	var (
		ctx   context.Context
		kv    *fakeKV
		dedup webhook.Deduplicator
	)

	BeforeEach(func() {
		ctx = context.Background()
		kv = newFakeKV()
		dedup = webhook.NewRedisDeduplicator(kv, 24*time.Hour)
	})

	It("returns false then true within the TTL", func() {
		first, err := dedup.IsDuplicate(ctx, "evt-1")
		Expect(err).NotTo(HaveOccurred())
		second, err := dedup.IsDuplicate(ctx, "evt-1")
		Expect(err).NotTo(HaveOccurred())

		Expect([]bool{first, second}).To(Equal([]bool{false, true}))
		Expect(kv.ttls[0]).To(Equal(24 * time.Hour))
	})

	It("forgets the id after the TTL", func() {
		first, _ := dedup.IsDuplicate(ctx, "evt-2")
		kv.advance(24*time.Hour + time.Second)
		second, _ := dedup.IsDuplicate(ctx, "evt-2")

		Expect([]bool{first, second}).To(Equal([]bool{false, false}))
	})

	It("does not extend the TTL on a duplicate", func() {
		_, _ = dedup.IsDuplicate(ctx, "evt-3")
		kv.advance(23 * time.Hour)
		dup, _ := dedup.IsDuplicate(ctx, "evt-3")
		Expect(dup).To(BeTrue())

		kv.advance(2 * time.Hour)
		dup, _ = dedup.IsDuplicate(ctx, "evt-3")
		Expect(dup).To(BeFalse())
	})

	It("lets exactly one concurrent caller through", func() {
		var wg sync.WaitGroup
		var mu sync.Mutex
		admitted := 0

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				dup, err := dedup.IsDuplicate(ctx, "evt-4")
				Expect(err).NotTo(HaveOccurred())
				if !dup {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Expect(admitted).To(Equal(1))
	})

	It("wraps store failures as ErrDedupUnavailable", func() {
		kv.err = errors.New("connection refused")
		_, err := dedup.IsDuplicate(ctx, "evt-5")
		Expect(errors.Is(err, webhook.ErrDedupUnavailable)).To(BeTrue())

		Expect(dedup.Release(ctx, "evt-5")).To(MatchError(webhook.ErrDedupUnavailable))
	})

	It("admits an id again after it is released", func() {
		first, _ := dedup.IsDuplicate(ctx, "evt-6")
		Expect(dedup.Release(ctx, "evt-6")).To(Succeed())
		second, _ := dedup.IsDuplicate(ctx, "evt-6")

		Expect([]bool{first, second}).To(Equal([]bool{false, false}))
	})
})
