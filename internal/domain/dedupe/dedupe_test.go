package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/stakingtier/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

		Convey("When a ledger action id is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "tx-1")
			second := d.SeenAndRecord(ctx, "tx-1")

			Convey("Then only the second call reports a duplicate", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an id is unrecorded", func() {
			d.SeenAndRecord(ctx, "tx-1")
			d.Unrecord(ctx, "tx-1")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "tx-1"), ShouldBeFalse)
			})
		})

		Convey("When capacity is exceeded", func() {
			for _, id := range []string{"tx-1", "tx-2", "tx-3", "tx-4"} {
				So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
			}

			Convey("Then the oldest id is evicted first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "tx-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "tx-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "tx-1"), ShouldBeFalse)
			})
		})

		Convey("When duplicates are checked repeatedly", func() {
			d.SeenAndRecord(ctx, "tx-1")
			d.SeenAndRecord(ctx, "tx-2")
			d.SeenAndRecord(ctx, "tx-3")
			// Lookups must not refresh tx-1 and save it from eviction.
			d.SeenAndRecord(ctx, "tx-1")
			d.SeenAndRecord(ctx, "tx-4")

			Convey("Then eviction order is insertion order", func() {
				So(d.SeenAndRecord(ctx, "tx-1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

		Convey("When many ids are recorded", func() {
			const n = 1000
			for i := 0; i < n; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("tx-%d", i))
			}

			Convey("Then none are evicted", func() {
				So(d.Size(), ShouldEqual, n)
				So(d.SeenAndRecord(ctx, "tx-0"), ShouldBeTrue)
				d.Unrecord(ctx, "tx-0")
				So(d.Size(), ShouldEqual, n-1)
			})
		})
	})

	Convey("Given a deduper with the default bound", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)
		So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
		So(d.SeenAndRecord(ctx, ""), ShouldBeTrue)
	})
}

func TestInMemoryDeduperConcurrency(t *testing.T) {
	Convey("Given concurrent submitters racing on the same ids", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10_000))
		const workers, ids = 8, 500

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < ids; i++ {
					if !d.SeenAndRecord(context.Background(), fmt.Sprintf("tx-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each id is accepted exactly once", func() {
			So(fresh, ShouldEqual, ids)
			So(d.Size(), ShouldEqual, ids)
		})
	})
}
