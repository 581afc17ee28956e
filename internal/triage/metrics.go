package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	ClassificationsTotal *prometheus.CounterVec
	RunDuration          *prometheus.HistogramVec
	RunLLMTime           *prometheus.HistogramVec
	RunToolTime          prometheus.Histogram
	RunTokensIn          prometheus.Histogram
	RunTokensOut         prometheus.Histogram
	RunToolCalls         prometheus.Histogram
	LLMCallsTotal        prometheus.Counter
	LLMTokensIn          prometheus.Counter
	LLMTokensOut         prometheus.Counter
	LLMDuration          prometheus.Histogram
	ToolCallsTotal       *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec
	SubmitsTotal         *prometheus.CounterVec
	OptimizationsTotal   *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_runs_total",
			Help: "Total email runs by final status.",
		}, []string{"status"}),
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_classifications_total",
			Help: "Total triage classifications by label.",
		}, []string{"label"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_run_duration_seconds",
			Help:    "Duration of email runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"status", "model"}),
		RunLLMTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_run_llm_time_seconds",
			Help:    "Total LLM time per run in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"model"}),
		RunToolTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_run_tool_time_seconds",
			Help:    "Total tool execution time per run in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}),
		RunTokensIn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_run_tokens_input",
			Help:    "Input tokens consumed per run.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12), // 100 .. ~409600
		}),
		RunTokensOut: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_run_tokens_output",
			Help:    "Output tokens consumed per run.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12), // 100 .. ~409600
		}),
		RunToolCalls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_run_tool_calls",
			Help:    "Tool calls per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 16), // 0 .. 15
		}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_llm_calls_total",
			Help: "Total LLM provider calls.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_tool_calls_total",
			Help: "Total tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_tool_duration_seconds",
			Help:    "Duration of tool executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 0.1s .. ~12.8s
		}, []string{"tool"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_submits_total",
			Help: "Total email submissions by result.",
		}, []string{"result"}),
		OptimizationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_optimizations_total",
			Help: "Total prompt optimization attempts by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.ClassificationsTotal,
		m.RunDuration,
		m.RunLLMTime,
		m.RunToolTime,
		m.RunTokensIn,
		m.RunTokensOut,
		m.RunToolCalls,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.ToolCallsTotal,
		m.ToolDuration,
		m.SubmitsTotal,
		m.OptimizationsTotal,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnLLMCall: func(inputTokens, outputTokens int, duration float64) {
			m.LLMCallsTotal.Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.Observe(duration)
		},
		OnToolCall: func(name string, duration float64, inputBytes, outputBytes int, isError bool) {
			status := "success"
			if isError {
				status = "error"
			}
			m.ToolCallsTotal.WithLabelValues(name, status).Inc()
			m.ToolDuration.WithLabelValues(name).Observe(duration)
		},
		OnComplete: func(e *CompleteEvent) {
			m.RunDuration.WithLabelValues(string(e.Status), e.Model).Observe(e.Duration)
			m.RunLLMTime.WithLabelValues(e.Model).Observe(e.LLMTime)
			m.RunToolTime.Observe(e.ToolTime)
			m.RunTokensIn.Observe(float64(e.TokensIn))
			m.RunTokensOut.Observe(float64(e.TokensOut))
			m.RunToolCalls.Observe(float64(e.ToolCalls))
		},
	}
}
