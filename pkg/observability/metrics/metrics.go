package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

const namespace = "clustermon"

var (
    once sync.Once

    ProbeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "probe",
        Name:      "runs_total",
        Help:      "Total number of probe executions by probe kind",
    }, []string{"kind"})

    ProbePanics = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "probe",
        Name:      "panics_total",
        Help:      "Total number of probe executions that panicked and were recovered",
    }, []string{"kind"})

    NodeConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "node",
        Name:      "connects_total",
        Help:      "Node connection attempts by result (started, coalesced, reset, ok, failed, stale)",
    }, []string{"result"})

    NodesConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "node",
        Name:      "connected",
        Help:      "Number of nodes with an open database connection per system",
    }, []string{"system"})

    CycleSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: namespace,
        Subsystem: "scheduler",
        Name:      "cycle_seconds",
        Help:      "Wall time spent in one scheduler cycle",
        Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
    }, []string{"system"})

    SchedulersRunning = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "scheduler",
        Name:      "running",
        Help:      "Number of system schedulers currently running",
    })

    MembershipRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "membership",
        Name:      "runs_total",
        Help:      "Total number of membership detections per system",
    }, []string{"system"})

    JoinedNodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "membership",
        Name:      "joined_nodes",
        Help:      "Nodes classified as joined in the last detection",
    }, []string{"system"})

    ObservationsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "api",
        Name:      "observations_written_total",
        Help:      "Observations handed to the API by scope (node, system)",
    }, []string{"scope"})

    WriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "api",
        Name:      "write_failures_total",
        Help:      "Failed API writes (logged and dropped)",
    })

    FleetMembers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "fleet",
        Name:      "members",
        Help:      "Current number of live monitor processes in the fleet",
    })

    FleetHealth = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "fleet",
        Name:      "health_score",
        Help:      "Gossip awareness score of this monitor (0 is healthy)",
    })

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })

    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of status calls served by the cached gRPC connection",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections replaced by a dial to another monitor",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of open status client gRPC connections",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(ProbeRuns)
        prometheus.MustRegister(ProbePanics)
        prometheus.MustRegister(NodeConnects)
        prometheus.MustRegister(NodesConnected)
        prometheus.MustRegister(CycleSeconds)
        prometheus.MustRegister(SchedulersRunning)
        prometheus.MustRegister(MembershipRuns)
        prometheus.MustRegister(JoinedNodes)
        prometheus.MustRegister(ObservationsWritten)
        prometheus.MustRegister(WriteFailures)
        prometheus.MustRegister(FleetMembers)
        prometheus.MustRegister(FleetHealth)
        prometheus.MustRegister(GRPCConnDials)
        prometheus.MustRegister(GRPCConnReuse)
        prometheus.MustRegister(GRPCConnEvictions)
        prometheus.MustRegister(GRPCConnActive)
    })
}
