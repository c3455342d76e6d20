// Package crawler drives a Beachwatch collection run: discovery of beach pages
// from the listing page, the daily table build, the uniform retry policy
// around fetches, and fan-out of the frozen table to sinks.
package crawler
