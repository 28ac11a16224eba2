package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/migrate"
)

/*
Writes one monitor event.  Json mode emits one object per line on
stdout; dumb mode writes human lines to stderr, leaving stdout for the
result.
*/
func SerializeEvent(format string, evt lfsmigrate.Event, stdout, stderr io.Writer) {
	switch format {
	case FmtJson:
		writeJson(stdout, evt)
	case FmtDumb:
		switch {
		case evt.Log != nil:
			var sb strings.Builder
			fmt.Fprintf(&sb, "[%s] %s", evt.Log.Level, evt.Log.Msg)
			for _, kv := range evt.Log.Detail {
				fmt.Fprintf(&sb, " %s=%s", kv[0], kv[1])
			}
			fmt.Fprintln(stderr, sb.String())
		case evt.Progress != nil:
			p := evt.Progress
			if p.TotalWork < 0 {
				fmt.Fprintf(stderr, "%s: %s\n", p.Phase, humanize.Comma(p.TotalProg))
			} else {
				fmt.Fprintf(stderr, "%s: %s / %s\n", p.Phase, humanize.Comma(p.TotalProg), humanize.Comma(p.TotalWork))
			}
		}
	default:
		panic(fmt.Errorf("lfsmigrate: invalid format %s", format))
	}
}

func SerializeResult(format string, res migrate.Result, resultErr error, stdout io.Writer, stderr io.Writer) {
	result := &lfsmigrate.Event_Result{
		Objects: res.Objects,
		Refs:    res.Refs,
	}
	result.SetError(resultErr)
	switch format {
	case FmtJson:
		writeJson(stdout, lfsmigrate.Event{Result: result})
	case FmtDumb:
		if resultErr != nil {
			fmt.Fprintln(stderr, resultErr)
			return
		}
		for _, ref := range res.Refs {
			fmt.Fprintf(stdout, "%s\t%s -> %s\n", ref.Name, ref.Old, ref.New)
		}
		fmt.Fprintf(stdout, "converted %s objects in %s\n", humanize.Comma(int64(res.Objects)), res.Duration.Round(1e6))
	default:
		panic(fmt.Errorf("lfsmigrate: invalid format %s", format))
	}
}

func writeJson(w io.Writer, evt lfsmigrate.Event) {
	marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, w, lfsmigrate.Atlas)
	if err := marshaller.Marshal(&evt); err != nil {
		panic(err)
	}
	w.Write([]byte{'\n'})
}
