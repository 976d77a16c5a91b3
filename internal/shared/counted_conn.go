package shared

import (
	"net"
	"sync/atomic"
)

// ConnStats 汇总经由代理建立的出站连接：当前打开数和累计流量。
type ConnStats struct {
	Open     atomic.Int64
	Uplink   atomic.Uint64
	Downlink atomic.Uint64
}

// CountedConn 是一个 net.Conn 的包装器，原子地统计流量，并在关闭时递减打开连接数。
type CountedConn struct {
	net.Conn
	stats  *ConnStats
	closed atomic.Bool
}

// NewCountedConn 创建一个新的 CountedConn 实例，并把它计入打开连接数。
func NewCountedConn(conn net.Conn, stats *ConnStats) *CountedConn {
	stats.Open.Add(1)
	return &CountedConn{
		Conn:  conn,
		stats: stats,
	}
}

// Read 从底层连接读取数据，并增加下行流量计数。
func (c *CountedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.stats.Downlink.Add(uint64(n))
	}
	return n, err
}

// Write 将数据写入底层连接，并增加上行流量计数。
func (c *CountedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.stats.Uplink.Add(uint64(n))
	}
	return n, err
}

// Close 可以被多次调用，打开连接数只递减一次。
func (c *CountedConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.stats.Open.Add(-1)
	}
	return c.Conn.Close()
}
