// Package pending stores queued writes, one table per record kind.
//
// Delivery is coordinated through the state column: Claim moves a record
// from pending to delivering with a single conditional UPDATE, so at most
// one caller can hold a record at a time. MarkSynced and Release both
// require the record to be in delivering.
package pending
