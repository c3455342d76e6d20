// Package main hosts the beachwatch collector entrypoint.
//
// Architecture overview:
//   - Discovery: the listing page is fetched, region links are followed, and every beach link is gathered as a
//     (region, url) pair in document order. Fetches go through the Colly fetcher (or Chromedp when fetch.mode is
//     headless) wrapped in a rate-limited retry loop.
//   - Table build: each beach page is parsed for the configured CSS classes; missing fields keep their selector as
//     the cell value. Rows are stamped with the Australia/Sydney time and frozen before any sink sees them.
//   - Sinks: CSV, XLSX and Parquet files under sinks.local.dir, an append-only SQLite table, an optional Postgres
//     table, and an optional object store copy (S3-compatible or GCS). A failing sink does not stop later sinks.
//   - Fanout: when pubsub.topic is set a run summary is published after every run.
//
// Operational notes:
//   - One-shot mode (-once) runs a single collection and exits non-zero when it fails. This is the mode used by
//     external schedulers such as cron or Cloud Scheduler.
//   - Service mode runs the in-process cron scheduler (schedule.*) and the HTTP API (server.*) until SIGINT or
//     SIGTERM. Runs never overlap; a trigger while busy is rejected.
//
// Quick checklist:
//   - Configure env vars with the BEACHWATCH_ prefix, e.g. BEACHWATCH_SINKS_OBJECT_ENABLED=true,
//     BEACHWATCH_SINKS_OBJECT_S3_ACCESS_KEY_ID, BEACHWATCH_SINKS_OBJECT_S3_SECRET_ACCESS_KEY.
//   - Run locally: go run ./cmd/beachwatch -once -limit 3 (or -config config.yaml).
package main
