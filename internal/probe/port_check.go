package probe

import (
	"net"
	"time"
)

// PortCheck reports ready once a TCP connection to Addr succeeds.
type PortCheck struct {
	Addr        string
	DialTimeout time.Duration // default 1s
}

func (c PortCheck) Ready() (bool, error) {
	d := c.DialTimeout
	if d <= 0 {
		d = time.Second
	}
	conn, err := net.DialTimeout("tcp", c.Addr, d)
	if err != nil {
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

func (c PortCheck) Describe() string { return "port:" + c.Addr }
