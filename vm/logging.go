package vm

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// log is the package-wide logger for GC phase transitions and
// statistics. It is only written to when a Config debug flag enables
// it -- never unconditionally on the allocation fast path -- so that a
// silent embedder pays no logging cost at all.
var log = commonlog.GetLogger("vm")

// SetLogger replaces the package logger, e.g. so an embedder can route
// VM log output into its own commonlog backend instead of the default
// "simple" one registered by this package's import above.
func SetLogger(l commonlog.Logger) { log = l }

// logHeapStats reports a before/after heap snapshot for one collection
// phase when cfg enables it, grounded on PrintHeapStatistics (§6).
func logHeapStats(cfg *Config, phase string, before, after HeapStats) {
	if cfg == nil || !cfg.Debug.PrintHeapStatistics {
		return
	}
	log.Infof("gc phase=%s new_before=%d/%d new_after=%d/%d old_before=%d/%d old_after=%d/%d",
		phase,
		before.NewUsed, before.NewSize, after.NewUsed, after.NewSize,
		before.OldUsed, before.OldSize, after.OldUsed, after.OldSize,
	)
}

// logProgramStats reports program GC orchestration progress when cfg
// enables PrintProgramStatistics.
func logProgramStats(cfg *Config, format string, args ...interface{}) {
	if cfg == nil || !cfg.Debug.PrintProgramStatistics {
		return
	}
	log.Infof(format, args...)
}
