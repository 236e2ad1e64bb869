// Package fusion blends self-reported and inferred per-item scores.
//
// Fuse is a pure function: identical inputs always produce identical results.
// Adjustment only happens when the agreement statistic is present and below
// AgreementThreshold; each item then moves toward the inferred score by a
// step-function weight chosen from the per-item deviation.
package fusion
