package uartlink

import (
	"bytes"
	"errors"
	"sync"
)

// ErrPortClosed is returned by mock port operations after Close.
var ErrPortClosed = errors.New("uartlink: port closed")

// MockSerialPort implements SerialPorter with scriptable reads, captured
// writes and injectable errors.
type MockSerialPort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// ReadErr is returned by the next Read if set.
	ReadErr error
	// WriteErr is returned by the next Write if set.
	WriteErr error

	closed     bool
	ReadCalls  int
	WriteCalls int
}

// FeedRead queues bytes for subsequent Read calls.
func (p *MockSerialPort) FeedRead(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(b)
}

// Read drains the scripted read buffer. An empty buffer returns (0, nil),
// matching a real port with a read timeout configured.
func (p *MockSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadCalls++
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.ReadErr != nil {
		err := p.ReadErr
		p.ReadErr = nil
		return 0, err
	}
	if p.readBuf.Len() == 0 {
		return 0, nil
	}
	return p.readBuf.Read(b)
}

// Write captures the written bytes.
func (p *MockSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WriteCalls++
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.WriteErr != nil {
		err := p.WriteErr
		p.WriteErr = nil
		return 0, err
	}
	return p.writeBuf.Write(b)
}

// Close marks the port closed.
func (p *MockSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockSerialPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Written returns everything written so far.
func (p *MockSerialPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.writeBuf.Bytes()...)
}

// ResetWritten clears the write capture.
func (p *MockSerialPort) ResetWritten() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeBuf.Reset()
}

// MockSerialFactory hands out a fixed sequence of ports, one per Open call,
// and can fail Opens to exercise reconnect paths.
type MockSerialFactory struct {
	mu    sync.Mutex
	ports []*MockSerialPort
	// OpenErr fails the next Open if set.
	OpenErr   error
	OpenCalls int
}

// NewMockSerialFactory builds a factory serving the given ports in order.
// When the list runs out, Open keeps returning the last port.
func NewMockSerialFactory(ports ...*MockSerialPort) *MockSerialFactory {
	return &MockSerialFactory{ports: ports}
}

// Open implements SerialPortFactory.
func (f *MockSerialFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls++
	if f.OpenErr != nil {
		err := f.OpenErr
		f.OpenErr = nil
		return nil, err
	}
	if len(f.ports) == 0 {
		return nil, errors.New("uartlink: mock factory has no ports")
	}
	port := f.ports[0]
	if len(f.ports) > 1 {
		f.ports = f.ports[1:]
	}
	return port, nil
}
