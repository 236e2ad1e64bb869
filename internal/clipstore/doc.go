// Package clipstore is the append-only filesystem store for raw and
// transcoded media blobs.
//
// Blobs are addressed by an owner key (for example "submissions/<id>/raw")
// and a file name. Write never overwrites: a second write to the same name
// fails with ErrExists. Data lands in a temporary file first and becomes
// visible through an atomic rename, so readers never observe partial blobs.
// Writers to the same owner are serialised with an flock so concurrent
// processes sharing a clip root stay consistent.
package clipstore
