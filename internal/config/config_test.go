package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/okian/stakingtier/internal/config"
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 500_000)
			convey.So(cfg.MaxStakersLimit, convey.ShouldEqual, 100)
			convey.So(cfg.FeeRate, convey.ShouldEqual, "0.003")
			convey.So(cfg.Symbol, convey.ShouldEqual, "WAX")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the default tier table is valid and sorted", func() {
			defs, err := cfg.TierDefinitions()
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(defs), convey.ShouldEqual, 5)
			convey.So(defs[0].ID, convey.ShouldEqual, tier.ID("bronze"))
			convey.So(defs[4].ID, convey.ShouldEqual, tier.ID("diamond"))
		})
	})
}

func TestConfig_TierDefinitions(t *testing.T) {
	convey.Convey("Given a configured tier table", t, func() {
		cfg := config.New(context.Background())
		cfg.Tiers = []config.TierConfig{
			{ID: " Gold ", Multiplier: "1.5", UpperThresholdPercent: "100"},
			{ID: "silver", DisplayName: "Silver", Multiplier: "1", UpperThresholdPercent: "2.5"},
		}

		convey.Convey("When it is converted", func() {
			defs, err := cfg.TierDefinitions()

			convey.Convey("Then ids are normalised once and tiers are sorted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(defs[0].ID, convey.ShouldEqual, tier.ID("silver"))
				convey.So(defs[1].ID, convey.ShouldEqual, tier.ID("gold"))
				convey.So(defs[1].DisplayName, convey.ShouldEqual, "gold")
				convey.So(defs[0].UpperThresholdPercent.String(), convey.ShouldEqual, "2.5")
			})
		})

		convey.Convey("When a threshold is not a number", func() {
			cfg.Tiers[0].UpperThresholdPercent = "lots"
			_, err := cfg.TierDefinitions()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When ids collide after normalisation", func() {
			cfg.Tiers[1].ID = "GOLD"
			_, err := cfg.TierDefinitions()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(errors.Is(err, tier.ErrDuplicateID), convey.ShouldBeTrue)
		})

		convey.Convey("When the table is empty", func() {
			cfg.Tiers = nil
			_, err := cfg.TierDefinitions()
			convey.So(errors.Is(err, tier.ErrEmptyTable), convey.ShouldBeTrue)
		})
	})
}

func TestConfig_FeeAndBuffer(t *testing.T) {
	convey.Convey("Given fee and buffer settings", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then valid strings parse", func() {
			fee, err := cfg.Fee()
			convey.So(err, convey.ShouldBeNil)
			convey.So(fee.String(), convey.ShouldEqual, "0.003")
			cfg.BufferPercent = ""
			buf, err := cfg.Buffer()
			convey.So(err, convey.ShouldBeNil)
			convey.So(buf.IsZero(), convey.ShouldBeTrue)
		})

		convey.Convey("Then malformed or out of range values are rejected", func() {
			cfg.FeeRate = "1"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.FeeRate = "abc"
			_, err := cfg.Fee()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			cfg.FeeRate = "0"
			cfg.BufferPercent = "-1"
			_, err = cfg.Buffer()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
