package hal

import "sync"

// MockDigitalPin records every level written to it.
type MockDigitalPin struct {
	mu      sync.Mutex
	level   bool
	history []bool
	Err     error
}

// Set records the level, returning the injected error if any.
func (p *MockDigitalPin) Set(high bool) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = high
	p.history = append(p.history, high)
	return nil
}

// Level returns the last written level.
func (p *MockDigitalPin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// History returns every level written, oldest first.
func (p *MockDigitalPin) History() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.history...)
}

// MockPWMPin records every duty written to it.
type MockPWMPin struct {
	mu      sync.Mutex
	duty    uint16
	history []uint16
	Err     error
}

// SetDuty records the duty, returning the injected error if any.
func (p *MockPWMPin) SetDuty(counts uint16) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duty = counts
	p.history = append(p.history, counts)
	return nil
}

// Duty returns the last written duty.
func (p *MockPWMPin) Duty() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// History returns every duty written, oldest first.
func (p *MockPWMPin) History() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint16(nil), p.history...)
}

// MockInterruptPin simulates an edge-triggered input. Tests drive it with
// Trigger.
type MockInterruptPin struct {
	mu      sync.Mutex
	level   bool
	handler func(bool)
}

// Get returns the simulated line level.
func (p *MockInterruptPin) Get() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

// SetEdgeHandler installs the edge callback.
func (p *MockInterruptPin) SetEdgeHandler(f func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = f
}

// Trigger flips the line to the given level and fires the handler, the way
// a real edge interrupt would.
func (p *MockInterruptPin) Trigger(high bool) {
	p.mu.Lock()
	p.level = high
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(high)
	}
}

// MockBattery returns a fixed voltage.
type MockBattery struct {
	Volts float64
	Err   error
}

// Voltage returns the configured reading.
func (b *MockBattery) Voltage() (float64, error) {
	return b.Volts, b.Err
}

// MockIMU returns a fixed sample.
type MockIMU struct {
	Sample IMUSample
	Err    error
}

// Read returns the configured sample.
func (m *MockIMU) Read() (IMUSample, error) {
	return m.Sample, m.Err
}
