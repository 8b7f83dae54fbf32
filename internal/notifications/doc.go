// Package notifications posts transient alerts to Slack.
//
// The Slack implementation uses github.com/slack-go/slack: each alert is a
// Block Kit message (header, coordinates, detection time, significance, flux,
// status) followed by an optional thumbnail upload, and voting reactions are
// seeded on the message so members can classify it. When no bot token is
// configured a no-op implementation is returned, so callers depend only on the
// Service interface.
package notifications
