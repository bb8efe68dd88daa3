package metrolib

import "errors"

var (
	ErrParse                = errors.New("scenario parse error")
	ErrUnknownOperation     = errors.New("unknown operation type")
	ErrInvalidPause         = errors.New("invalid pause")
	ErrInvalidArgs          = errors.New("invalid operation arguments")
	ErrInvalidRecord        = errors.New("invalid resumption record")
	ErrUnsupportedVersion   = errors.New("unsupported resumption record version")
	ErrTracerNotInitialized = errors.New("tracer used before initialization")
	ErrEmptyScenario        = errors.New("scenario contains no operations")
)
