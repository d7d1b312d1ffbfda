// Package zulip turns task-application events into Zulip messages and hands
// them to an asynchronous webhook poster.
//
// Settings come from per-user or per-project metadata (the zulip_* keys); the
// webhook URL alone falls back to the global setting. A subject without a
// webhook URL is silently skipped. Project dispatch can be narrowed with a
// comma-separated event filter.
//
// Delivery is fire-and-forget: the Dispatcher never learns whether a post
// succeeded.
package zulip
