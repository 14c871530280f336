// Package tasker runs long-running units of work asynchronously on bounded
// worker pools and tracks them as task records.
//
// A Service wires one orchestrator per namespace (tasks, jobs, ...) with a
// record mirror, registered pipelines, an event listener and an HTTP
// server:
//
//	cfg, _ := tasker.LoadConfig(ctx, "tasker.yaml")
//	srv, _ := tasker.New(ctx, cfg)
//	_ = srv.Start(ctx)
//	record, _ := srv.Submit(ctx, "jobs", "train", task.Payload{"output": "model.pt"})
//	final, _ := srv.Orchestrator("jobs").Wait(ctx, record.ID)
//
// Cancellation is advisory: work observes its signal and decides when to
// stop.
package tasker
