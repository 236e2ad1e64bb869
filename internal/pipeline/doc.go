// Package pipeline drives a submission from upload to analysis.
//
// The Orchestrator scores answers, persists them together with the raw clip
// index, then runs the media pipeline: transcoding fans out over the clips,
// the inference engine runs once over whatever transcoded, and fusion turns
// its output into an analysis record. Each transition is written to the run
// row in the store.
//
// Media failures never fail a submission. A clip that does not transcode is
// reported in ClipFailures; an engine timeout, crash or malformed output ends
// the run in NO_ANALYSIS and the response still carries the total score. Only
// persistence failures are returned as errors.
package pipeline
