// Package tapsailthru extracts marketing data from the Sailthru API and
// emits it as an ordered stream of SCHEMA, RECORD and STATE messages on
// stdout, one JSON document per line. A downstream consumer loads the
// records and persists the state so the next run resumes where the last
// one stopped.
//
// # Streams
//
// Eight streams are supported. ad_targeter_plans, lists, blast_query,
// blast_save_list and users replicate full-table on every run; blasts,
// blast_repeats and purchase_log replicate incrementally using a
// per-stream bookmark. blast_query, blast_save_list, users and
// purchase_log are backed by Sailthru's asynchronous export jobs: the
// tap submits a job, polls it to completion and streams the resulting
// CSV.
//
// # Usage
//
// Verify credentials and print the catalog:
//
//	tap-sailthru discover --config config.json > catalog.json
//
// Sync the selected streams:
//
//	tap-sailthru sync --config config.json --catalog catalog.json --state state.json
//
// Logs are structured JSON on stderr; stdout carries only the message
// stream.
package tapsailthru
