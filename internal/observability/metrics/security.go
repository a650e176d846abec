package metrics

import (
	"time"

	obserrors "github.com/target/gatekeeper/internal/observability/errors"
	"github.com/target/gatekeeper/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// AuthMetric captures one authentication attempt.
type AuthMetric struct {
	Strategy string
	// Realms is the number of realms consulted.
	Realms   int
	Result   string
	Duration time.Duration
	Err      error
}

// EmitAuthentication emits authc.attempt and authc.duration.
func EmitAuthentication(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"strategy": in.Strategy,
		"result":   in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count("authc.attempt", 1, tags)
	if in.Duration > 0 {
		sink.Timing("authc.duration", in.Duration, CloneTags(tags))
	}
}

// EmitRealmFailure counts a single realm's rejection by error class.
func EmitRealmFailure(sink statsd.Sink, realm string, err error) {
	if sink == nil || err == nil {
		return
	}
	sink.Count("authc.realm_failure", 1, map[string]string{
		"realm":       realm,
		"error_class": obserrors.Classify(err),
	})
}

// Session lifecycle transitions.
const (
	SessionStarted = "session.started"
	SessionStopped = "session.stopped"
	SessionExpired = "session.expired"
)

// EmitSessionTransition counts a lifecycle transition. via is "access" or "sweep" for expiries.
func EmitSessionTransition(sink statsd.Sink, metric, via string) {
	if sink == nil {
		return
	}
	var tags map[string]string
	if via != "" {
		tags = map[string]string{"via": via}
	}
	sink.Count(metric, 1, tags)
}

// SweepMetric summarizes one expiry sweep pass.
type SweepMetric struct {
	Expired  int
	Purged   int
	Active   int
	Duration time.Duration
}

// EmitSweep emits session.sweep counters, the active-session gauge and the pass duration.
func EmitSweep(sink statsd.Sink, in SweepMetric) {
	if sink == nil {
		return
	}
	result := ResultNoop
	if in.Expired > 0 || in.Purged > 0 {
		result = ResultSuccess
	}
	sink.Count("session.sweep", 1, map[string]string{"result": result})
	if in.Expired > 0 {
		sink.Count(SessionExpired, int64(in.Expired), map[string]string{"via": "sweep"})
	}
	sink.Gauge("session.active", float64(in.Active), nil)
	if in.Duration > 0 {
		sink.Timing("session.sweep_duration", in.Duration, nil)
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
