// Package producer provides tests for Kafka producer functionality.
package producer

import (
	"context"
	"testing"

	"github.com/stargan-id/jaga-gizi-alerting/internal/events"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{"a:9092, b:9092 ,", []string{"a:9092", "b:9092"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseBrokers(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseBrokers(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseBrokers(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestNewProducer tests the NewProducer constructor with various scenarios.
func TestNewProducer(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		topic   string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty brokers",
			brokers: "",
			topic:   "notifications.ready",
			wantErr: true,
			errMsg:  "brokers cannot be empty",
		},
		{
			name:    "empty topic",
			brokers: "localhost:9092",
			topic:   "",
			wantErr: true,
			errMsg:  "topic cannot be empty",
		},
		{
			name:    "valid config",
			brokers: "localhost:9092",
			topic:   "notifications.ready",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Topic creation is best effort, so construction succeeds without a broker.
			producer, err := NewProducer(tt.brokers, tt.topic)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewProducer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && err.Error() != tt.errMsg {
				t.Errorf("NewProducer() error = %v, want error message %v", err.Error(), tt.errMsg)
			}
			if producer != nil {
				_ = producer.Close()
			}
		})
	}
}

func TestLogPublisher(t *testing.T) {
	var p LogPublisher
	err := p.Publish(context.Background(), &events.NotificationReady{NotificationID: "n1", UserID: "u1"})
	if err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
