// Package client contains client-side building blocks for myid.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract for the remote profile endpoint (see the
//     Client interface): Ping, Upsert and Delete.
//  2. An HTTP implementation (see HTTPClient) that sends JSON and maps
//     response statuses and transport failures to sentinel errors.
//  3. Local persistence bootstrap utilities (InitDatabase, RunMigrations) for
//     the CLI, wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, ErrUnauthorized.
//
// The remote endpoint is a placeholder; the sync worker only needs it to
// accept or reject a request.
package client
