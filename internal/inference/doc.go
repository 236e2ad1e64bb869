// Package inference runs the external analysis engine once per submission and
// decodes its result.
//
// Engine launches the configured command in its own process group with the
// working directory and the JSON score array as trailing arguments. A hard
// deadline kills the whole group; a non-zero exit is a crash. Decode is the
// only place that tolerates the engine's non-finite number tokens, mapping
// them to null before strict JSON decoding.
//
// Stage ties the two together: it stages transcoded clips into the working
// directory under their canonical names, invokes the engine, and masks
// objective values for items that had no clip.
package inference
