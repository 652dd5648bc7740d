//go:build !linux

package forward

import (
	"context"
	"errors"
)

var errIPTablesUnsupported = errors.New("the iptables backend is only supported on linux")

type IPTables struct{}

func newIPTables() (*IPTables, error) {
	return nil, errIPTablesUnsupported
}

func (*IPTables) DeleteForward(context.Context, string, int) error { return errIPTablesUnsupported }

func (*IPTables) AddForward(context.Context, string, int, string) error {
	return errIPTablesUnsupported
}

func (*IPTables) DeleteRule(context.Context, string) error { return errIPTablesUnsupported }

func (*IPTables) AddRule(context.Context, string, int) error { return errIPTablesUnsupported }
