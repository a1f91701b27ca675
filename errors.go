package kadcast

import "errors"

// Sentinel errors for the root package, following the small-sentinel-vars-
// wrapped-with-%w idiom used throughout this module's other packages.
var (
	ErrClosed       = errors.New("kadcast: peer is closed")
	ErrNoBootstrap  = errors.New("kadcast: no bootstrap nodes configured")
	ErrInvalidAddr  = errors.New("kadcast: invalid address")
	ErrChannelFull  = errors.New("kadcast: channel full, message dropped")
)
