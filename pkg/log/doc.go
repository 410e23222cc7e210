/*
Package log provides structured logging for hammer using zerolog.

A single global Logger is configured once via Init and handed out to every
other package through WithComponent/WithStressor/WithInstance/WithRun, which
attach the relevant identifying fields (component name, stressor name,
instance index, run ID) the way the rest of the orchestrator expects to find
them in both the console and JSON writers.

Console output is used for interactive runs (the default); JSON output suits
log shipping when hammer runs unattended. Neither mode buffers: writes go
straight to the configured io.Writer (stdout when none is given).
*/
package log
