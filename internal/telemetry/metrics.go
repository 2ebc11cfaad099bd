package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector teamsync exports.
//
// Example PromQL queries:
//   - Failed courses per hour:   increase(teamsync_courses_synced_total{status="failed"}[1h])
//   - Members added per day:     increase(teamsync_members_added_total[1d])
//   - p95 course sync duration:  histogram_quantile(0.95, rate(teamsync_course_sync_duration_seconds_bucket[1h]))
type Metrics struct {
	CoursesSynced      *prometheus.CounterVec
	UsersCreated       prometheus.Counter
	UsersFailed        prometheus.Counter
	MembersAdded       prometheus.Counter
	CourseSyncDuration *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. Passing nil uses a private
// registry, which keeps tests independent of each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		CoursesSynced: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamsync_courses_synced_total",
				Help: "Courses processed by a sync, by trigger and final status.",
			},
			[]string{"trigger", "status"},
		),
		UsersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "teamsync_users_created_total",
			Help: "Platform accounts created for directory members.",
		}),
		UsersFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "teamsync_users_failed_total",
			Help: "Directory members that could not be provisioned on the platform.",
		}),
		MembersAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "teamsync_members_added_total",
			Help: "Team memberships added by reconciliation.",
		}),
		CourseSyncDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "teamsync_course_sync_duration_seconds",
				Help:    "Duration of syncing a single course.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"trigger"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed, by method, route pattern, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, by method and route pattern.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveCourse records one finished course.
func (m *Metrics) ObserveCourse(trigger, status string, added, failedUsers int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CoursesSynced.WithLabelValues(trigger, status).Inc()
	m.MembersAdded.Add(float64(added))
	m.UsersFailed.Add(float64(failedUsers))
	m.CourseSyncDuration.WithLabelValues(trigger).Observe(elapsed.Seconds())
}
