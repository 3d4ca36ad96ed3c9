package api

import (
	"poolguard/core/pool"
	"poolguard/core/saturation"
	"poolguard/tasks"

	"github.com/prometheus/client_golang/prometheus"
)

type poolsMetricsCollector struct {
	pools []*pool.Pool

	poolSizeDesc  *prometheus.Desc
	activeDesc    *prometheus.Desc
	coreDesc      *prometheus.Desc
	maxDesc       *prometheus.Desc
	largestDesc   *prometheus.Desc
	tasksDesc     *prometheus.Desc
	completedDesc *prometheus.Desc
	stateDesc     *prometheus.Desc
}

func newPoolsMetricsCollector(pools []*pool.Pool) prometheus.Collector {
	return &poolsMetricsCollector{
		pools: pools,
		poolSizeDesc: prometheus.NewDesc(
			"poolguard_pool_size",
			"Workers currently alive in the pool.",
			[]string{"pool"},
			nil,
		),
		activeDesc: prometheus.NewDesc(
			"poolguard_pool_active",
			"Workers currently executing a task.",
			[]string{"pool"},
			nil,
		),
		coreDesc: prometheus.NewDesc(
			"poolguard_pool_core_size",
			"Configured core worker count.",
			[]string{"pool"},
			nil,
		),
		maxDesc: prometheus.NewDesc(
			"poolguard_pool_max_size",
			"Configured maximum worker count.",
			[]string{"pool"},
			nil,
		),
		largestDesc: prometheus.NewDesc(
			"poolguard_pool_largest_size",
			"High water mark of workers alive.",
			[]string{"pool"},
			nil,
		),
		tasksDesc: prometheus.NewDesc(
			"poolguard_pool_tasks_total",
			"Total tasks accepted by the pool.",
			[]string{"pool"},
			nil,
		),
		completedDesc: prometheus.NewDesc(
			"poolguard_pool_tasks_completed_total",
			"Total tasks that finished executing.",
			[]string{"pool"},
			nil,
		),
		stateDesc: prometheus.NewDesc(
			"poolguard_pool_state",
			"Pool lifecycle flag (1 when set).",
			[]string{"pool", "state"},
			nil,
		),
	}
}

func (c *poolsMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolSizeDesc
	ch <- c.activeDesc
	ch <- c.coreDesc
	ch <- c.maxDesc
	ch <- c.largestDesc
	ch <- c.tasksDesc
	ch <- c.completedDesc
	ch <- c.stateDesc
}

func (c *poolsMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	for _, p := range c.pools {
		if p == nil {
			continue
		}
		label := p.Label()
		snap := p.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.poolSizeDesc, prometheus.GaugeValue, float64(snap.PoolSize), label)
		ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(snap.Active), label)
		ch <- prometheus.MustNewConstMetric(c.coreDesc, prometheus.GaugeValue, float64(snap.Core), label)
		ch <- prometheus.MustNewConstMetric(c.maxDesc, prometheus.GaugeValue, float64(snap.Max), label)
		ch <- prometheus.MustNewConstMetric(c.largestDesc, prometheus.GaugeValue, float64(snap.Largest), label)
		ch <- prometheus.MustNewConstMetric(c.tasksDesc, prometheus.CounterValue, float64(snap.Tasks), label)
		ch <- prometheus.MustNewConstMetric(c.completedDesc, prometheus.CounterValue, float64(snap.Completed), label)
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, boolGauge(snap.Shutdown), label, "shutdown")
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, boolGauge(snap.Terminating), label, "terminating")
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, boolGauge(snap.Terminated), label, "terminated")
	}
}

type saturationMetricsCollector struct {
	reporters []*saturation.Reporter
	pruner    *tasks.RetentionPruner

	rejectionsDesc   *prometheus.Desc
	dumpsDesc        *prometheus.Desc
	dumpErrorsDesc   *prometheus.Desc
	dumpSkipsDesc    *prometheus.Desc
	lastDumpDesc     *prometheus.Desc
	prunerTicksDesc  *prometheus.Desc
	prunerErrorsDesc *prometheus.Desc
	prunedFilesDesc  *prometheus.Desc
	prunerLastDesc   *prometheus.Desc
}

func newSaturationMetricsCollector(reporters []*saturation.Reporter, pruner *tasks.RetentionPruner) prometheus.Collector {
	return &saturationMetricsCollector{
		reporters: reporters,
		pruner:    pruner,
		rejectionsDesc: prometheus.NewDesc(
			"poolguard_rejections_total",
			"Total submissions rejected by the saturation policy.",
			[]string{"pool"},
			nil,
		),
		dumpsDesc: prometheus.NewDesc(
			"poolguard_dumps_total",
			"Total diagnostic dump attempts.",
			[]string{"pool"},
			nil,
		),
		dumpErrorsDesc: prometheus.NewDesc(
			"poolguard_dump_errors_total",
			"Total diagnostic dump attempts that failed.",
			[]string{"pool"},
			nil,
		),
		dumpSkipsDesc: prometheus.NewDesc(
			"poolguard_dump_skips_total",
			"Dump triggers skipped by cooldown or gate contention.",
			[]string{"pool"},
			nil,
		),
		lastDumpDesc: prometheus.NewDesc(
			"poolguard_last_dump_timestamp",
			"Unix timestamp of the last finished dump.",
			[]string{"pool"},
			nil,
		),
		prunerTicksDesc: prometheus.NewDesc(
			"poolguard_pruner_ticks_total",
			"Total retention pruner runs.",
			nil,
			nil,
		),
		prunerErrorsDesc: prometheus.NewDesc(
			"poolguard_pruner_tick_errors_total",
			"Total retention pruner run errors.",
			nil,
			nil,
		),
		prunedFilesDesc: prometheus.NewDesc(
			"poolguard_pruner_files_removed_total",
			"Total dump files removed by retention.",
			nil,
			nil,
		),
		prunerLastDesc: prometheus.NewDesc(
			"poolguard_pruner_last_tick_timestamp",
			"Unix timestamp of the last retention pruner run.",
			nil,
			nil,
		),
	}
}

func (c *saturationMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rejectionsDesc
	ch <- c.dumpsDesc
	ch <- c.dumpErrorsDesc
	ch <- c.dumpSkipsDesc
	ch <- c.lastDumpDesc
	ch <- c.prunerTicksDesc
	ch <- c.prunerErrorsDesc
	ch <- c.prunedFilesDesc
	ch <- c.prunerLastDesc
}

func (c *saturationMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	for _, r := range c.reporters {
		if r == nil {
			continue
		}
		s := r.StatsSnapshot()
		ch <- prometheus.MustNewConstMetric(c.rejectionsDesc, prometheus.CounterValue, float64(s.RejectionsTotal), s.Label)
		ch <- prometheus.MustNewConstMetric(c.dumpsDesc, prometheus.CounterValue, float64(s.DumpsTotal), s.Label)
		ch <- prometheus.MustNewConstMetric(c.dumpErrorsDesc, prometheus.CounterValue, float64(s.DumpErrorsTotal), s.Label)
		ch <- prometheus.MustNewConstMetric(c.dumpSkipsDesc, prometheus.CounterValue, float64(s.DumpSkipsTotal), s.Label)
		if s.LastDumpAtUTC != nil {
			ch <- prometheus.MustNewConstMetric(c.lastDumpDesc, prometheus.GaugeValue, float64(s.LastDumpAtUTC.Unix()), s.Label)
		}
	}
	if c.pruner != nil {
		s := c.pruner.StatsSnapshot()
		ch <- prometheus.MustNewConstMetric(c.prunerTicksDesc, prometheus.CounterValue, float64(s.TicksTotal))
		ch <- prometheus.MustNewConstMetric(c.prunerErrorsDesc, prometheus.CounterValue, float64(s.TickErrorsTotal))
		ch <- prometheus.MustNewConstMetric(c.prunedFilesDesc, prometheus.CounterValue, float64(s.FilesRemovedTotal))
		if s.LastTickAtUTC != nil {
			ch <- prometheus.MustNewConstMetric(c.prunerLastDesc, prometheus.GaugeValue, float64(s.LastTickAtUTC.Unix()))
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
