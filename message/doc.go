// Package message holds the runtime form of a pipeline definition.
//
// A Definition is built from a config.PipelineConfig and carries the
// prefix that names its status variables, the interval countdown, the
// trigger and body sources with their resolved caches, and the output
// routing. Counters and caches are safe to read from any goroutine; the
// countdown is advanced only by the scheduler loop.
//
// Basic usage:
//
//	def, err := message.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := def.Load(ctx, resolver); err != nil {
//	    logger.Warn("pipeline resolved with errors", "prefix", def.Prefix, "error", err)
//	}
//	if def.Tick() {
//	    // render and deliver
//	}
package message
