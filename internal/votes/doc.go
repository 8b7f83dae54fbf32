// Package votes tracks how channel members classify posted transients.
//
// Every alert is seeded with four reactions, each standing for a category:
// :milky_way: (AGN), :fire: (interesting), :star: (stellar) and :wastebasket:
// (junk). Reaction counts are stored per transient in SQLite, classified
// against per-category thresholds, and ranked by a weighted priority score so
// follow-up can start with the most promising candidates.
//
// Counts reach the store in two ways: Collector.Sync polls every posted
// message, and Listener follows reaction events over a Slack Socket Mode
// websocket while watch mode is running.
package votes
