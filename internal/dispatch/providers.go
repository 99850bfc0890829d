package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockPushProvider is a mock push provider for testing
type MockPushProvider struct {
	mu         sync.RWMutex
	sent       map[string]Alert
	failOnSend bool
	sendDelay  time.Duration
}

// NewMockPushProvider creates a new mock push provider
func NewMockPushProvider() *MockPushProvider {
	return &MockPushProvider{
		sent: make(map[string]Alert),
	}
}

// Name returns the provider name
func (p *MockPushProvider) Name() string {
	return "mock_push"
}

// Send records a push alert (mock implementation)
func (p *MockPushProvider) Send(ctx context.Context, alert *Alert) error {
	if p.sendDelay > 0 {
		time.Sleep(p.sendDelay)
	}

	if p.failOnSend {
		return fmt.Errorf("mock send failure")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent[alert.ID] = *alert
	return nil
}

// SetFailOnSend sets whether Send should fail
func (p *MockPushProvider) SetFailOnSend(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnSend = fail
}

// SetSendDelay sets artificial delay for Send
func (p *MockPushProvider) SetSendDelay(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendDelay = delay
}

// SentAlerts returns snapshots of all alerts the provider accepted
func (p *MockPushProvider) SentAlerts() []Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]Alert, 0, len(p.sent))
	for _, a := range p.sent {
		result = append(result, a)
	}
	return result
}

// ConsoleProvider logs alerts to the console (for development and limited
// mode, where no push infrastructure is configured)
type ConsoleProvider struct {
	prefix string
}

// NewConsoleProvider creates a console logging provider
func NewConsoleProvider(prefix string) *ConsoleProvider {
	return &ConsoleProvider{prefix: prefix}
}

// Name returns the provider name
func (p *ConsoleProvider) Name() string {
	return "console"
}

// Send logs the alert to the console
func (p *ConsoleProvider) Send(ctx context.Context, alert *Alert) error {
	fmt.Printf("\n[%s ALERT]\n", p.prefix)
	fmt.Printf("  Medicine: %s (%s)\n", alert.MedicineName, alert.Dosage)
	fmt.Printf("  Due:      %s %s\n", alert.Date, alert.Slot)
	fmt.Printf("  Subject:  %s\n", alert.Subject)
	fmt.Printf("  Body:     %s\n", alert.Body)
	fmt.Println()
	return nil
}
