// Command vidsurvey runs the questionnaire submission daemon and talks to it.
//
// `vidsurvey serve` owns the store and the HTTP API. The remaining commands
// either call the API (submit, reanalyze) or read through it, falling back
// to the local database when no daemon answers (show, list).
package main
