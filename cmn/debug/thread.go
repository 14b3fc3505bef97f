package debug

// ThreadID identifies a runloop goroutine for AssertOnThread. A runloop
// mints one in runloop.NewLoop; envproxy compares it against the caller's
// in CreateProxy and NotifyAsync.
type ThreadID uint64
