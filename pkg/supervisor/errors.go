package supervisor

import "errors"

var (
    ErrUnknownSystem = errors.New("supervisor: unknown system")
)
