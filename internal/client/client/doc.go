// Package client contains the client-side building blocks for talking to the
// NutriTrack backend and for bootstrapping the local queue database.
//
// # Overview
//
//  1. A transport-agnostic contract (see the Client interface): Create,
//     Ping and DeployColor.
//  2. An HTTP/JSON implementation (see HTTPClient) that maps transport
//     failures to ErrUnavailable and non-2xx answers to *RejectedError.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations,
//     NewRepositories) wiring a SQLite database with embedded goose
//     migrations.
//
// # Error Handling
//
// Callers match transport problems with errors.Is(err, ErrUnavailable) and
// backend refusals with errors.As(err, &*RejectedError). A 2xx answer that
// carries no id yields ErrMissingID.
package client
