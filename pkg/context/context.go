// Package context aliases the standard library context so call sites read
// context.T, context.Bg and so on.
package context

import (
	"context"
)

type (
	T = context.Context
	F = context.CancelFunc
	C = context.CancelCauseFunc
)

var (
	Bg               = context.Background
	Cancel           = context.WithCancel
	Timeout          = context.WithTimeout
	TODO             = context.TODO
	Value            = context.WithValue
	CancelCause      = context.WithCancelCause
	Cause            = context.Cause
	Canceled         = context.Canceled
	DeadlineExceeded = context.DeadlineExceeded
	AfterFunc        = context.AfterFunc
)
