package lfsmigrate

import (
	"time"

	"github.com/polydawn/refmt/obj/atlas"
)

var Atlas = atlas.MustBuild(
	atlas.BuildEntry(Event{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Log{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Progress{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Result{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(RefUpdate{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Error{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(time.Time{}).Transform().
		TransformMarshal(atlas.MakeMarshalTransformFunc(
			func(t time.Time) (string, error) {
				return t.UTC().Format(time.RFC3339Nano), nil
			})).
		TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
			func(s string) (time.Time, error) {
				return time.Parse(time.RFC3339Nano, s)
			})).
		Complete(),
)
