// Package review is the batching and dispatch engine. It partitions the
// files matching each check into token-bounded batches, drives every batch
// through the shared throttle and the LLM client, validates the structured
// findings each response carries, and merges everything into a single run
// report.
//
// Failures are isolated at the batch level: a batch that exhausts its
// retries is recorded on its check's result and the run continues, so one
// flaky endpoint response never discards the findings of sibling batches
// or checks.
package review
