package client

import (
	"github.com/Hubmakerlabs/feedr/pkg/context"
)

// MustConnect connects to url or panics.
func MustConnect(url string) *T {
	rl, err := Connect(context.Bg(), url)
	if err != nil {
		panic(err.Error())
	}
	return rl
}
