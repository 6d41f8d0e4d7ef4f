// Package queryid tracks the GraphQL query ids the upstream rotates with
// every frontend deployment. Ids are discovered by scraping the obfuscated
// main bundle, cached in memory, and snapshotted to disk so a restart does
// not require an immediate scrape.
package queryid
