package relay

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestClient_PingAndSend(t *testing.T) {
	device := &fakeDevice{}
	r := startRelay(t, Config{}, device)
	client := NewClient(r.Addr().String(), 2*time.Second)

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Expected ping to succeed, got: %v", err)
	}

	reply, err := client.Send(context.Background(), Servo(45)+"\n")
	if err != nil {
		t.Fatalf("Expected send to succeed, got: %v", err)
	}
	if reply != "forwarded" {
		t.Errorf("Expected reply forwarded, got %q", reply)
	}
	if device.String() != "S45\n" {
		t.Errorf("Expected device to receive %q, got %q", "S45\n", device.String())
	}
}

func TestClient_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client := NewClient(addr, 500*time.Millisecond)
	if err := client.Ping(context.Background()); err == nil {
		t.Error("Expected error when relay is not running")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", 0)
	if c.Addr != DefaultAddr || c.Probe != DefaultProbe || c.Timeout <= 0 {
		t.Errorf("Unexpected defaults %+v", c)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"servo in range", Servo(90), "S90"},
		{"servo below range", Servo(-5), "S0"},
		{"servo above range", Servo(270), "S180"},
		{"stepper forward", Stepper(512), "M512"},
		{"stepper backward", Stepper(-100), "M-100"},
		{"stepper clamped", Stepper(-5000), "M-2048"},
		{"stepper clamped high", Stepper(9999), "M2048"},
		{"buzzer on", Buzzer(true), "B1"},
		{"buzzer off", Buzzer(false), "B0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}
