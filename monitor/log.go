/*
Helper functions for emitting structured logs and progress to a
lfsmigrate.Monitor.

These cover the common lifecycle events of a migration, and using them
keeps those events formatted the same way wherever they're raised.
Every function is a no-op when the monitor has no channel.
*/
package monitor

import (
	"fmt"
	"time"

	"github.com/polydawn/lfsmigrate"
)

func Log(mon lfsmigrate.Monitor, level lfsmigrate.LogLevel, msg string, detail ...[2]string) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- lfsmigrate.Event{
		Log: &lfsmigrate.Event_Log{
			Time:   time.Now(),
			Level:  level,
			Msg:    msg,
			Detail: detail,
		},
	}
}

func PhaseStarted(mon lfsmigrate.Monitor, phase string, work int64) {
	Log(mon, lfsmigrate.LogInfo, fmt.Sprintf("%s: starting", phase),
		[2]string{"work", fmt.Sprint(work)},
	)
}

func PhaseDone(mon lfsmigrate.Monitor, phase string, done int64, elapsed time.Duration) {
	Log(mon, lfsmigrate.LogInfo, fmt.Sprintf("%s: done", phase),
		[2]string{"tasks", fmt.Sprint(done)},
		[2]string{"elapsed", elapsed.Round(time.Millisecond).String()},
	)
}

// Typically called with a failure from the upload queue; the run will abort.
func UploadFailed(mon lfsmigrate.Monitor, err error) {
	Log(mon, lfsmigrate.LogError, "upload failed: "+err.Error(),
		[2]string{"category", fmt.Sprint(lfsmigrate.ToError(err).Category)},
	)
}

func RefRewritten(mon lfsmigrate.Monitor, update lfsmigrate.RefUpdate) {
	Log(mon, lfsmigrate.LogDebug, "ref rewritten: "+update.Name,
		[2]string{"old", update.Old},
		[2]string{"new", update.New},
	)
}
