// Package health tracks component health for the /healthz endpoint.
//
// A Status is healthy, degraded or unhealthy. Components either push a
// Status into the Monitor or register a CheckFunc that is evaluated when
// health is read:
//
//	monitor := health.NewMonitor()
//	monitor.Register("nats", func() health.Status {
//	    if nc.IsHealthy() {
//	        return health.NewHealthy("nats", "connected")
//	    }
//	    return health.NewUnhealthy("nats", nc.Status().String())
//	})
//	monitor.UpdateDegraded("pipelines", "2 of 5 pipelines failed to resolve")
//
//	system := monitor.AggregateHealth("varmsg")
//	w.WriteHeader(system.HTTPCode())
//
// Aggregation is worst-case: any unhealthy component makes the system
// unhealthy, otherwise any degraded one makes it degraded.
//
// FromError strips server URLs, IP addresses and credentials from error
// text before it reaches the endpoint.
package health
