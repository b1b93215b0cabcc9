package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When a manager is created with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("tiers"),
				WithHistogramBuckets([]float64{0.1, 1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			m.calculations.WithLabelValues(OutcomeOK).Inc()

			Convey("Then its collectors carry the configured names and labels", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_tiers_calculations_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are passed", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then the defaults are kept", func() {
				So(m.namespace, ShouldEqual, "staketier")
				So(m.subsystem, ShouldEqual, "engine")
				So(m.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestRecordingHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When calculations are recorded", func() {
			before := testutil.ToFloat64(globalManager.calculations.WithLabelValues(OutcomeInsufficientData))
			RecordCalculation(OutcomeInsufficientData, 0.2)
			RecordCalculation(OutcomeInsufficientData, 0.4)

			Convey("Then the outcome counter advances", func() {
				So(testutil.ToFloat64(globalManager.calculations.WithLabelValues(OutcomeInsufficientData)), ShouldEqual, before+2)
			})
		})

		Convey("When tier evaluations are recorded", func() {
			before := testutil.ToFloat64(globalManager.tierResolutions.WithLabelValues("gold"))
			up := testutil.ToFloat64(globalManager.upgradesAvailable)
			RecordTierResolution("gold")
			RecordUpgradeAvailable()
			RecordTierUnreachable()

			Convey("Then the per-tier and upgrade counters advance", func() {
				So(testutil.ToFloat64(globalManager.tierResolutions.WithLabelValues("gold")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.upgradesAvailable), ShouldEqual, up+1)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(100)
			UpdateQueueUtilization(0.07)
			UpdateWorkerCount(4)
			UpdateStakers(12)
			UpdatePoolTotal(1234.5)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.stakers), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.poolTotal), ShouldEqual, 1234.5)
			})
		})

		Convey("When the remaining helpers are called", func() {
			So(func() {
				RecordLedgerEvent("stake", EventApplied)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(1)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(3)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordStoreUpdateLatency(0.1)
				RecordStoreQueryLatency(0.1)
				RecordHTTPRequest("/tiers", "GET", "200", 3)
				RecordErrorByComponent("worker", "apply")
				RecordErrorByEndpoint("/events", "POST", "validation")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestRegistryExposition(t *testing.T) {
	Convey("Given recorded ledger events", t, func() {
		RecordLedgerEvent("unstake", EventDuplicate)

		Convey("Then the custom registry exposes them", func() {
			n, err := testutil.GatherAndCount(GetRegistry(), "staketier_engine_ledger_events_total")
			So(err, ShouldBeNil)
			So(n, ShouldBeGreaterThan, 0)
		})
	})
}
