// Package output delivers rendered messages to their destinations.
//
// A Dispatcher maps each pipeline's output type to a Sink factory:
//
//	d := output.NewDispatcher(
//	    output.WithFactory(message.OutputStdout, stdout.Factory(os.Stdout)),
//	    output.WithFactory(message.OutputFile, file.Factory),
//	    output.WithFactory(message.OutputMQueue, mqueue.Factory(nc, logger)),
//	)
//	defer d.Close()
//
//	if err := d.Deliver(ctx, def, data); err != nil {
//	    def.RecordError()
//	}
//
// Sinks are opened lazily and cached by type, target and append mode.
// Implementations live in the stdout, file and mqueue subpackages.
package output
