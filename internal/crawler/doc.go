// Package crawler defines the shared types, interfaces, and error taxonomy of
// the sitemap coverage crawler: sitemap nodes and documents, crawl targets,
// classified records, and the run summary.
package crawler
