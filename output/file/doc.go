// Package file implements the "file" output type.
//
// Each distinct path gets one Sink holding an open handle for the life of
// the process. The parent directory is created on open.
//
// # Modes
//
// Append mode (the default) adds every message to the end of the file, so
// the file grows as a JSON Lines log:
//
//	{ "/gps/lat":"45.1","/gps/lon":"-75.2"}
//	{ "/gps/lat":"45.2","/gps/lon":"-75.2"}
//
// Overwrite mode ("append": false in the pipeline) truncates the file before
// each message, leaving only the latest snapshot. Readers may observe an
// empty file between the truncate and the write.
//
// # Usage
//
//	s, err := file.Open("/var/lib/varmsg/gps.json", true, logger)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	err = s.Deliver(ctx, data)
package file
