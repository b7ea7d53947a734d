// Package output writes replicated records as Singer messages.
//
// Every line on the output stream is one JSON object:
//
//	{"type":"RECORD","stream":"tasks","record":{...},"time_extracted":"..."}
//	{"type":"STATE","value":{"bookmarks":{"tasks":{"modified_at":"..."}}}}
//
// RECORD lines appear in emission order. A STATE line follows the last
// record of a stream once its watermark has been committed, and carries
// the bookmarks of every stream committed so far in the run.
//
// Record bodies use canonical JSON (see Marshal) so that the same record
// always serializes to the same bytes.
package output
