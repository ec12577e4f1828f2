package triage

import "github.com/prometheus/client_golang/prometheus"

// Hooks decouples the triage core from metrics. Nil funcs are skipped.
type Hooks struct {
	OnClassification   func(outcome string, seconds float64)
	OnQuestion         func(index int)
	OnCompletion       func(urgency int, assessed bool)
	OnHalt             func()
	OnEscalationNotice func(level int)
}

func (h Hooks) classification(outcome string, seconds float64) {
	if h.OnClassification != nil {
		h.OnClassification(outcome, seconds)
	}
}

func (h Hooks) question(index int) {
	if h.OnQuestion != nil {
		h.OnQuestion(index)
	}
}

func (h Hooks) completion(urgency int, assessed bool) {
	if h.OnCompletion != nil {
		h.OnCompletion(urgency, assessed)
	}
}

func (h Hooks) halt() {
	if h.OnHalt != nil {
		h.OnHalt()
	}
}

func (h Hooks) escalationNotice(level int) {
	if h.OnEscalationNotice != nil {
		h.OnEscalationNotice(level)
	}
}

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	CompletionsTotal       *prometheus.CounterVec
	ClassificationsTotal   *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram
	QuestionsTotal         prometheus.Counter
	HaltsTotal             prometheus.Counter
	EscalationsTotal       *prometheus.CounterVec
	NotificationsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solace_triage_completions_total",
			Help: "Completed triage conversations by urgency level and whether an assessment was available.",
		}, []string{"urgency", "assessed"}),
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solace_classifications_total",
			Help: "Classifier calls by outcome (ok, backend_error, parse_error).",
		}, []string{"outcome"}),
		ClassificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solace_classification_duration_seconds",
			Help:    "Duration of classifier calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
		QuestionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solace_triage_questions_total",
			Help: "Scripted questions emitted.",
		}),
		HaltsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solace_triage_halts_total",
			Help: "Conversations halted by a staff reply before triage completed.",
		}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solace_escalation_notices_total",
			Help: "In-conversation escalation notices by urgency level.",
		}, []string{"level"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solace_staff_notifications_total",
			Help: "Staff notification deliveries by status (sent, failed).",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.CompletionsTotal,
		m.ClassificationsTotal,
		m.ClassificationDuration,
		m.QuestionsTotal,
		m.HaltsTotal,
		m.EscalationsTotal,
		m.NotificationsTotal,
	)

	return m
}

// Hooks returns a Hooks that increments the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnClassification: func(outcome string, seconds float64) {
			m.ClassificationsTotal.WithLabelValues(outcome).Inc()
			m.ClassificationDuration.Observe(seconds)
		},
		OnQuestion: func(int) {
			m.QuestionsTotal.Inc()
		},
		OnCompletion: func(urgency int, assessed bool) {
			m.CompletionsTotal.WithLabelValues(urgencyLabel(urgency), boolLabel(assessed)).Inc()
		},
		OnHalt: func() {
			m.HaltsTotal.Inc()
		},
		OnEscalationNotice: func(level int) {
			m.EscalationsTotal.WithLabelValues(urgencyLabel(level)).Inc()
		},
	}
}

func urgencyLabel(n int) string {
	switch n {
	case UrgencyNormal:
		return "0"
	case UrgencyAttention:
		return "1"
	case UrgencyUrgent:
		return "2"
	default:
		return "3"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
