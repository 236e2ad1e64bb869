// Package transcode converts uploaded raw clips into the canonical container
// the inference engine reads.
//
// Each clip is an independent ffmpeg run with its own timeout. TranscodeAll
// fans out with a bounded errgroup and always waits for every clip: a failed
// clip is reported in its Outcome and never cancels its siblings. When
// validation is enabled the output is probed with ffprobe and rejected if it
// carries no audio or video stream.
package transcode
