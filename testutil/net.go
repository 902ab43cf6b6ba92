/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	loopbackHost = "127.0.0.1"
	pollInterval = 10 * time.Millisecond
	dialTimeout  = time.Second
)

// GetLocalFreeTCPPort asks the kernel for a TCP port on the loopback interface that nobody listens on right now.
func GetLocalFreeTCPPort() int {
	ln, err := net.Listen("tcp", net.JoinHostPort(loopbackHost, "0"))
	if err != nil {
		panic(err)
	}
	defer func() {
		if closeErr := ln.Close(); closeErr != nil {
			panic(closeErr)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// GetLocalAddrWithFreeTCPPort returns a loopback host:port pair with a free TCP port.
func GetLocalAddrWithFreeTCPPort() string {
	return fmt.Sprintf("%s:%d", loopbackHost, GetLocalFreeTCPPort())
}

// WaitListeningServer blocks until a TCP connection to addr succeeds or timeout elapses.
func WaitListeningServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	return pollUntil(deadline, "server on "+addr+" is not listening", func() bool {
		return canDial(addr)
	})
}

// WaitPortAndListeningServer first polls getPort until it reports a bound port,
// then waits for the server on host:port to accept connections. Both phases share the timeout.
func WaitPortAndListeningServer(host string, getPort func() int, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	var port int
	if err := pollUntil(deadline, "server port is still unknown", func() bool {
		port = getPort()
		return port > 0
	}); err != nil {
		return 0, err
	}
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	return port, pollUntil(deadline, "server on "+addr+" is not listening", func() bool {
		return canDial(addr)
	})
}

func canDial(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func pollUntil(deadline time.Time, failMsg string, cond func() bool) error {
	for !cond() {
		if time.Now().After(deadline) {
			return errors.New(failMsg)
		}
		time.Sleep(pollInterval)
	}
	return nil
}
