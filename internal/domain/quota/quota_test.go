package quota_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/agentmatch/internal/domain/quota"
	. "github.com/smartystreets/goconvey/convey"
)

func fixedLimit(n int) quota.LimitProvider {
	return quota.LimitFunc(func(context.Context, string) (int, error) { return n, nil })
}

func TestManager_TryReserve(t *testing.T) {
	ctx := context.Background()

	Convey("Given a manager with a limit of 1", t, func() {
		m := quota.NewManager(quota.NewMemoryStore(), quota.WithLimitProvider(fixedLimit(1)))

		Convey("When reserving twice on the same day", func() {
			first, err1 := m.TryReserve(ctx, "u1")
			second, err2 := m.TryReserve(ctx, "u1")

			Convey("Then the second is denied", func() {
				So(err1, ShouldBeNil)
				So(first.Used, ShouldEqual, 1)
				So(first.Limit, ShouldEqual, 1)
				So(errors.Is(err2, quota.ErrQuotaExhausted), ShouldBeTrue)
				So(second.Used, ShouldEqual, 1)
			})
		})

		Convey("When another user reserves", func() {
			_, _ = m.TryReserve(ctx, "u1")
			_, err := m.TryReserve(ctx, "u2")

			Convey("Then quotas are independent", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When the user id is empty", func() {
			_, err := m.TryReserve(ctx, "")

			Convey("Then it is rejected", func() {
				So(err, ShouldEqual, quota.ErrInvalidUser)
			})
		})
	})

	Convey("Given a manager whose clock crosses midnight", t, func() {
		now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
		m := quota.NewManager(quota.NewMemoryStore(),
			quota.WithLimitProvider(fixedLimit(1)),
			quota.WithClock(func() time.Time { return now }),
		)

		_, err := m.TryReserve(ctx, "u1")
		So(err, ShouldBeNil)
		_, err = m.TryReserve(ctx, "u1")
		So(err, ShouldEqual, quota.ErrQuotaExhausted)

		now = now.Add(2 * time.Minute)

		Convey("Then the new date starts a fresh record", func() {
			q, err := m.TryReserve(ctx, "u1")
			So(err, ShouldBeNil)
			So(q.Date, ShouldEqual, "2024-03-02")
			So(q.Used, ShouldEqual, 1)
		})
	})

	Convey("Given a manager in a non-UTC zone", t, func() {
		loc := time.FixedZone("UTC+8", 8*3600)
		m := quota.NewManager(quota.NewMemoryStore(),
			quota.WithClock(func() time.Time { return time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC) }),
			quota.WithLocation(loc),
		)

		Convey("Then the date follows the zone", func() {
			So(m.Today(), ShouldEqual, "2024-03-02")
		})
	})
}

func TestManager_Limit(t *testing.T) {
	ctx := context.Background()

	Convey("Given configured limits", t, func() {
		Convey("Then unset falls back to the default", func() {
			m := quota.NewManager(quota.NewMemoryStore(), quota.WithDefaultLimit(3))
			l, err := m.Limit(ctx, "u")
			So(err, ShouldBeNil)
			So(l, ShouldEqual, 3)
		})

		Convey("Then large values are clamped to 10", func() {
			m := quota.NewManager(quota.NewMemoryStore(), quota.WithLimitProvider(fixedLimit(99)))
			l, err := m.Limit(ctx, "u")
			So(err, ShouldBeNil)
			So(l, ShouldEqual, 10)
		})

		Convey("Then provider errors propagate", func() {
			boom := errors.New("boom")
			m := quota.NewManager(quota.NewMemoryStore(), quota.WithLimitProvider(
				quota.LimitFunc(func(context.Context, string) (int, error) { return 0, boom }),
			))
			_, err := m.TryReserve(ctx, "u")
			So(errors.Is(err, boom), ShouldBeTrue)
		})
	})
}

func TestManager_CurrentAndRelease(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh manager", t, func() {
		m := quota.NewManager(quota.NewMemoryStore(), quota.WithLimitProvider(fixedLimit(2)))

		Convey("When nothing was reserved", func() {
			q, err := m.Current(ctx, "u1")

			Convey("Then the view is empty with the effective limit", func() {
				So(err, ShouldBeNil)
				So(q.Used, ShouldEqual, 0)
				So(q.Limit, ShouldEqual, 2)
				So(q.Date, ShouldEqual, m.Today())
			})
		})

		Convey("When a reservation is released", func() {
			q, err := m.TryReserve(ctx, "u1")
			So(err, ShouldBeNil)
			So(m.Release(ctx, q), ShouldBeNil)

			Convey("Then the attempt is available again", func() {
				cur, err := m.Current(ctx, "u1")
				So(err, ShouldBeNil)
				So(cur.Used, ShouldEqual, 0)
			})

			Convey("And releasing again never goes below zero", func() {
				So(m.Release(ctx, q), ShouldBeNil)
				cur, _ := m.Current(ctx, "u1")
				So(cur.Used, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a user who lowers the limit after spending attempts", t, func() {
		var limit atomic.Int64
		limit.Store(5)
		m := quota.NewManager(quota.NewMemoryStore(), quota.WithLimitProvider(
			quota.LimitFunc(func(context.Context, string) (int, error) { return int(limit.Load()), nil }),
		))
		for i := 0; i < 3; i++ {
			_, err := m.TryReserve(ctx, "u1")
			So(err, ShouldBeNil)
		}
		limit.Store(1)

		Convey("Then the view never shows used above limit", func() {
			cur, err := m.Current(ctx, "u1")
			So(err, ShouldBeNil)
			So(cur.Used, ShouldEqual, 3)
			So(cur.Limit, ShouldEqual, 3)
		})

		Convey("Then no further attempt is granted today", func() {
			_, err := m.TryReserve(ctx, "u1")
			So(errors.Is(err, quota.ErrQuotaExhausted), ShouldBeTrue)
		})
	})
}

func TestManager_ConcurrentReservations(t *testing.T) {
	Convey("Given 20 concurrent reservations against a limit of 5", t, func() {
		var granted, denied atomic.Int64
		m := quota.NewManager(quota.NewMemoryStore(),
			quota.WithLimitProvider(fixedLimit(5)),
			quota.WithReserveObserver(func(ok bool) {
				if ok {
					granted.Add(1)
				} else {
					denied.Add(1)
				}
			}),
		)
		ctx := context.Background()

		var wg sync.WaitGroup
		var successes atomic.Int64
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := m.TryReserve(ctx, "u1"); err == nil {
					successes.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly 5 succeed", func() {
			So(successes.Load(), ShouldEqual, 5)
			So(granted.Load(), ShouldEqual, 5)
			So(denied.Load(), ShouldEqual, 15)

			q, err := m.Current(ctx, "u1")
			So(err, ShouldBeNil)
			So(q.Used, ShouldEqual, 5)
		})
	})
}
