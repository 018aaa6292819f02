package main

import (
	"crypto/tls"
	"fmt"

	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/transport/grpctransport"
	"github.com/muyun12/iceproxy/transport/quictransport"
)

func resolveBinder(transportName string, insecureSkipVerify bool) (reference.Binder, error) {
	switch transportName {
	case "grpc":
		return grpctransport.NewBinder(), nil
	case "quic":
		return quictransport.NewBinder(&tls.Config{InsecureSkipVerify: insecureSkipVerify, NextProtos: []string{"iceproxy"}}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q, want grpc or quic", transportName)
	}
}
