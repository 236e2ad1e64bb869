// Package logs reads the daemon log file for `vidsurvey logs`.
//
// Last returns the final lines of the file together with the byte offset
// reached; Follow polls from an offset and hands each appended line to a
// callback until the context ends. A file that shrinks (rotation or
// truncation) is re-read from the start.
package logs
