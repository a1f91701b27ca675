package kbucket

import "errors"

// Sentinel errors surfaced to internal callers (never to the application,
// per spec §7 — BucketFull and InvalidNode are structured return values).
var (
	ErrBucketFull  = errors.New("kbucket: bucket full")
	ErrInvalidNode = errors.New("kbucket: invalid node")
)
