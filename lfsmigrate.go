/*
Vocabulary shared by every lfsmigrate package.

lfsmigrate rewrites a git repository's full object graph so that files
matching a set of gitattributes-style patterns are replaced by Git LFS
pointers, with the real content moved into a content-addressable store
(and optionally uploaded to an LFS server or S3-compatible bucket).

Types in this file are all serializable; the CLI emits them as json
when asked, using the refmt `Atlas` below.
*/
package lfsmigrate

import (
	"time"
)

/*
Configuration for what intermediate progress reports a process should send,
and slot for the channel the caller wishes them to be sent to.

A nil channel disables all intermediate reporting.
Components never close the channel; its owner does, after the run returns.
*/
type Monitor struct {
	Chan chan<- Event
}

/*
A "union" type of all the kinds of event that may be generated in the
course of a migration.

The "Result" message is never sent to Monitor.Chan --
its values are converted into the function returns --
but *is* seen in the serial form on the wire.
*/
type Event struct {
	Log      *Event_Log      `refmt:"log,omitempty"`
	Progress *Event_Progress `refmt:"prog,omitempty"`
	Result   *Event_Result   `refmt:"result,omitempty"`
}

type LogLevel int

const (
	LogError LogLevel = 1
	LogWarn  LogLevel = 2
	LogInfo  LogLevel = 3
	LogDebug LogLevel = 4
)

func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	default:
		return "unknown"
	}
}

type Event_Log struct {
	Time   time.Time   `refmt:"t"`
	Level  LogLevel    `refmt:"lvl"`
	Msg    string      `refmt:"msg"`
	Detail [][2]string `refmt:"detail,omitempty"`
}

/*
Notifications about progress updates.

'Phase' remains the same for many events in a row ("discover", "convert",
"convert-sequential", "upload"); 'TotalWork' is negative when the amount
of work is not known yet (graph discovery).
*/
type Event_Progress struct {
	Phase     string `refmt:"phase"`
	Desc      string `refmt:"desc,omitempty"`
	TotalProg int64  `refmt:"prog"`
	TotalWork int64  `refmt:"work"`
}

type Event_Result struct {
	Objects int         `refmt:"objects"`
	Refs    []RefUpdate `refmt:"refs,omitempty"`
	Error   *Error      `refmt:"error,omitempty"`
}

// One rewritten reference.  Symbolic references carry their target in New.
type RefUpdate struct {
	Name string `refmt:"name"`
	Old  string `refmt:"old"`
	New  string `refmt:"new"`
}

// Serializable form of a categorized error.
type Error struct {
	Category ErrorCategory     `refmt:"category"`
	Message  string            `refmt:"msg"`
	Details  map[string]string `refmt:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func (r *Event_Result) SetError(err error) {
	if err == nil {
		r.Error = nil
		return
	}
	r.Error = ToError(err)
}
