package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orian/trendlabel/models"
)

var (
	// tasksTotal counts tasks by name and outcome ("ok" or the error kind)
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendlabel_tasks_total",
		Help: "Total annotation tasks by task and outcome",
	}, []string{"task", "outcome"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendlabel_task_duration_seconds",
		Help:    "Annotation task duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	}, []string{"task"})

	saveFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendlabel_save_files_total",
		Help: "Ledger files copied by SaveAll by outcome",
	}, []string{"outcome"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trendlabel_active_sessions",
		Help: "Open websocket annotation sessions",
	})
)

func observeTask(res models.TaskResult, elapsed time.Duration) {
	task := string(res.Task)
	if !res.Task.IsValid() {
		task = "unknown"
	}
	tasksTotal.WithLabelValues(task, taskOutcome(res)).Inc()
	taskDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

func taskOutcome(res models.TaskResult) string {
	if res.Error != nil {
		return string(res.Error.Kind)
	}
	if !res.Success {
		return string(models.KindInternal)
	}
	return "ok"
}

func observeSaveFile(ok bool) {
	if ok {
		saveFilesTotal.WithLabelValues("ok").Inc()
		return
	}
	saveFilesTotal.WithLabelValues("failed").Inc()
}
