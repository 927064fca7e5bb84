package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	spawns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procspawn",
		Name:      "spawns_total",
		Help:      "Total number of spawn attempts by mode and result.",
	}, []string{"mode", "result"})

	liveProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "procspawn",
		Name:      "live_processes",
		Help:      "Spawned processes whose OS handle is still owned by the spawner.",
	})

	waitLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "procspawn",
		Name:      "wait_duration_seconds",
		Help:      "Duration of wait calls in seconds by outcome.",
	}, []string{"result"})

	kills = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "procspawn",
		Name:      "kills_total",
		Help:      "Total number of forced terminations requested.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procspawn",
		Name:      "build_info",
		Help:      "Build metadata for the running procspawn binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(spawns, liveProcesses, waitLatency, kills, buildInfo)
}

// Registry returns the Prometheus registry containing all procspawn metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveSpawn counts one spawn attempt. mode is "attached", "fd" or
// "detached".
func ObserveSpawn(mode string, err error) {
	if mode == "" {
		mode = "unknown"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	spawns.WithLabelValues(mode, result).Inc()
}

// ProcessStarted records a new process handle owned by the spawner.
func ProcessStarted() {
	liveProcesses.Inc()
}

// ProcessReleased records a process handle that was closed or handed to the
// caller.
func ProcessReleased() {
	liveProcesses.Dec()
}

// ObserveWait records the latency of a wait call.
func ObserveWait(result string, d time.Duration) {
	label := result
	if label == "" {
		label = "unknown"
	}
	waitLatency.WithLabelValues(label).Observe(d.Seconds())
}

// IncrementKill counts one forced termination.
func IncrementKill() {
	kills.Inc()
}

// WriteTextfile writes the registry in the text exposition format, as used
// by the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
