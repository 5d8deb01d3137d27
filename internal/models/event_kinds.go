package models

// Journal event kinds emitted by the bridge into the project store.
// Purely labels used at insertion time; the MCP server and reporting
// tools may filter on them but the bridge never queries them back.
const (
	EventKindPreSession  = "pre_session"
	EventKindPostSession = "post_session"
	EventKindPreTask     = "pre_task"
	EventKindPostTask    = "post_task"
	EventKindPreCommit   = "pre_commit"
	EventKindPostCommand = "post_command"
	EventKindReviewFail  = "review_fail"
	EventKindRecovery    = "crash_recovery"
	EventKindBlocker     = "blocker"
)
