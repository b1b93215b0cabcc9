package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	service "github.com/okian/stakingtier/internal/app"
	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/tier"
	. "github.com/smartystreets/goconvey/convey"
)

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func submit(ctx context.Context, svc *service.Service, e model.LedgerEvent) error { //nolint:gocritic // hugeParam: events travel by value
	if svc.SeenAndRecord(ctx, e.EventID) {
		return nil
	}
	if err := svc.Enqueue(ctx, e); err != nil {
		svc.Unrecord(ctx, e.EventID)
		return err
	}
	return nil
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newService()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When two owners stake through the queue", func() {
			So(submit(ctx, svc, stakeEvent("tx-1", "alice", "30.00000000 WAX")), ShouldBeNil)
			So(submit(ctx, svc, stakeEvent("tx-2", "bob", "970.00000000 WAX")), ShouldBeNil)
			So(eventually(func() bool { return svc.GetStats()["stakers"] == 2 }), ShouldBeTrue)

			Convey("Then the pool holds the gross deposits", func() {
				So(svc.Pool(ctx).TotalStaked, ShouldEqual, "1000.00000000 WAX")
			})

			Convey("Then each owner resolves to a tier", func() {
				alice, err := svc.TierProgress(ctx, "alice")
				So(err, ShouldBeNil)
				So(alice.StakedAmount, ShouldEqual, "29.91000000 WAX")
				So(alice.SharePercent, ShouldEqual, "2.991")
				So(alice.CurrentTier.ID, ShouldEqual, "b")
				So(alice.ClaimStatus, ShouldEqual, string(tier.ClaimNone))

				bob, err := svc.TierProgress(ctx, "bob")
				So(err, ShouldBeNil)
				So(bob.CurrentTier.ID, ShouldEqual, "c")
				So(bob.NextTier, ShouldBeNil)
			})

			Convey("Then the ranking orders them by stake", func() {
				top, err := svc.TopStakers(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 2)
				So(top[0].Owner, ShouldEqual, "bob")
				So(top[1].Owner, ShouldEqual, "alice")

				r, err := svc.Rank(ctx, "alice")
				So(err, ShouldBeNil)
				So(r.Rank, ShouldEqual, 2)
			})

			Convey("Then a duplicate event is not applied twice", func() {
				So(submit(ctx, svc, stakeEvent("tx-1", "alice", "30.00000000 WAX")), ShouldBeNil)
				time.Sleep(50 * time.Millisecond)
				So(svc.Pool(ctx).TotalStaked, ShouldEqual, "1000.00000000 WAX")
			})

			Convey("And the ledger records a lagging tier for alice", func() {
				So(submit(ctx, svc, model.LedgerEvent{EventID: "tx-3", Owner: "alice", Kind: model.KindTierChange, Tier: "a", TS: time.Now()}), ShouldBeNil)
				So(eventually(func() bool {
					p, err := svc.TierProgress(ctx, "alice")
					return err == nil && p.RecordedTier == "a"
				}), ShouldBeTrue)

				Convey("Then an upgrade is reported", func() {
					p, _ := svc.TierProgress(ctx, "alice")
					So(p.ClaimStatus, ShouldEqual, string(tier.ClaimUpgradeAvailable))
				})

				Convey("Then the pool weight follows the recorded multiplier", func() {
					// bob untiered: 967.09 * 1, alice in a: 29.91 * 1
					So(svc.Pool(ctx).TotalWeight, ShouldEqual, "997.00000000 WAX")
				})
			})

			Convey("And alice withdraws everything", func() {
				So(submit(ctx, svc, model.LedgerEvent{
					EventID: "tx-4", Owner: "alice", Kind: model.KindUnstake,
					Quantity: quantity.Parse("29.91000000 WAX"), Cooldown: time.Hour, TS: time.Now(),
				}), ShouldBeNil)
				So(eventually(func() bool { return svc.GetStats()["stakers"] == 1 }), ShouldBeTrue)

				Convey("Then she drops out of the ranking", func() {
					_, err := svc.Rank(ctx, "alice")
					So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
				})

				Convey("Then her progress sits in the lowest tier", func() {
					p, err := svc.TierProgress(ctx, "alice")
					So(err, ShouldBeNil)
					So(p.CurrentTier.ID, ShouldEqual, "a")
					So(p.SafeUnstakeAmount, ShouldEqual, "0.00000000 WAX")
				})
			})

			Convey("And an unstake overdraws the account", func() {
				So(submit(ctx, svc, model.LedgerEvent{
					EventID: "tx-5", Owner: "alice", Kind: model.KindUnstake,
					Quantity: quantity.Parse("30.00000000 WAX"), TS: time.Now(),
				}), ShouldBeNil)
				time.Sleep(50 * time.Millisecond)

				Convey("Then the ledger is unchanged", func() {
					p, err := svc.TierProgress(ctx, "alice")
					So(err, ShouldBeNil)
					So(p.StakedAmount, ShouldEqual, "29.91000000 WAX")
				})
			})
		})

		Convey("When many owners stake concurrently", func() {
			const owners, perOwner = 20, 10
			var wg sync.WaitGroup
			for o := 0; o < owners; o++ {
				wg.Add(1)
				go func(o int) {
					defer wg.Done()
					for j := 0; j < perOwner; j++ {
						e := stakeEvent(fmt.Sprintf("tx-%d-%d", o, j), fmt.Sprintf("owner-%02d", o), "1.00000000 WAX")
						for errors.Is(submit(ctx, svc, e), service.ErrBackpressure) {
							time.Sleep(time.Millisecond)
						}
					}
				}(o)
			}
			wg.Wait()

			Convey("Then every deposit reaches the pool", func() {
				So(eventually(func() bool {
					return svc.Pool(ctx).TotalStaked == fmt.Sprintf("%d.00000000 WAX", owners*perOwner)
				}), ShouldBeTrue)
				So(svc.GetStats()["stakers"], ShouldEqual, owners)
				So(svc.Size(), ShouldEqual, owners*perOwner)
			})
		})
	})
}
