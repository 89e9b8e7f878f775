package session

import (
	"errors"
	"time"
)

// StartedNotice announces a recording in the session's time zone.
func StartedNotice(startedAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = startedAt.Location()
	}
	return "⏺ Recording started — " + startedAt.In(loc).Format("2006-01-02 15:04:05") + " (" + loc.String() + ")"
}

// JoinFailedNotice is the command reply when Start fails. It carries the
// cause of the last attempt rather than the retry bookkeeping.
func JoinFailedNotice(err error) string {
	cause := err
	var transient *TransientConnectError
	if errors.As(err, &transient) && transient.Err != nil {
		cause = transient.Err
	}
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return "❌ Recording failed — Could not join the voice channel (" + reason + ")"
}
