/*
Package observability exposes engine activity as Prometheus metrics.

Metrics are fed exclusively through domain.LifecycleHooks, so the workflow
controller and the merge engine stay unaware of Prometheus:

	m := observability.NewMetrics(prometheus.DefaultRegisterer)
	engine := redline.New(..., redline.WithHooks(m.Hooks()))
*/
package observability
