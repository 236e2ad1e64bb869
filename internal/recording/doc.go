// Package recording implements the respondent-side session controller.
//
// A Controller walks a questionnaire through INTRO, CONSENT, one QUIZ step per
// item, REVIEW, SUBMITTING and finally DONE or FAILED. Entering a quiz step
// acquires the device and starts a capture for that item unless it already has
// a clip; a device failure leaves the item without one. The
// handle is acquired and released under the controller lock: advancing,
// interrupting or reviewing always stops and closes the current capture
// before another one can be opened, so two captures never overlap.
//
// Captured chunks become a clip when at least one chunk arrived; a clip is
// never replaced once kept. Interrupt is the hard-cancel path for page hide,
// unload or navigation and is safe to call at any time.
//
// FileDevice replays pre-recorded per-item files and backs the CLI.
package recording
