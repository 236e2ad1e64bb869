// Package survey models questionnaires, their items, and respondent answers.
//
// Score turns the loose answer list a client uploads into exactly one Answer
// per item in ordinal order, clamping option indexes into the 0..3 score range
// and recording unanswered items with the Unanswered sentinel. LoadFile reads
// questionnaire definitions from YAML or JSON for the import command.
package survey
