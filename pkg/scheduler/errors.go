package scheduler

import "errors"

var (
    // ErrNoNodes ends a scheduler whose system kept reporting no nodes.
    ErrNoNodes = errors.New("scheduler: system has no nodes")
)
