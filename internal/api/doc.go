// Package api serves the vidsurvey HTTP surface and defines its wire types.
//
// # Routes
//
// Submissions arrive as one multipart request per completed questionnaire:
// a sessionId field, an answers field holding a JSON array of
// {questionId, optionIndex} objects, and zero or more clip parts named
// question_<NN>.<ext>. Clips may also be staged one at a time under the
// session id before the final submission binds them.
//
// Read routes expose questionnaires, stored submissions, their latest
// analysis with run history, raw clips, and a dependency report.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Errors are {"error": "..."} with the status
// taken from services.HTTPStatus; submission errors raised after scoring also
// carry totalScore so a client can still show the self-reported result.
// Authentication is a static bearer token and is disabled when no token is
// configured.
package api
