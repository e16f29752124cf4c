// Package statemachine provides immutable, generic transition tables for
// records whose state is persisted elsewhere.
//
//	type Status string
//	type Event string
//
//	var lifecycle = statemachine.MustTable(
//		statemachine.Transition[Status, Event]{From: "draft", Event: "publish", To: "live"},
//		statemachine.Transition[Status, Event]{From: "live", Event: "archive", To: "archived"},
//	)
//
//	next, err := lifecycle.Next(record.Status, "publish")
//	if statemachine.IsNoTransitionAvailableError(err) {
//		// reject the request
//	}
package statemachine
