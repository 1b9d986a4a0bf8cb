package env

import (
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestGet(t *testing.T) {
	t.Setenv("VOTES_TEST_VALUE", "hub")
	if got := Get("VOTES_TEST_VALUE", "x"); got != "hub" {
		t.Errorf("expected hub, got %q", got)
	}
	if got := Get("VOTES_TEST_MISSING", "x"); got != "x" {
		t.Errorf("expected default, got %q", got)
	}
}

func TestGetInt(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantErr string
	}{
		{name: "unset uses default", value: "", want: 60},
		{name: "parses value", value: "300", want: 300},
		{name: "trims spaces", value: " 15 ", want: 15},
		{name: "rejects garbage", value: "ten", wantErr: "REDIS_EXPIRATION_TIME_IN_SEC: invalid integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_EXPIRATION_TIME_IN_SEC", tt.value)
			got, err := GetInt("REDIS_EXPIRATION_TIME_IN_SEC", 60)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestGetFloat(t *testing.T) {
	t.Setenv("RPC_RATE_LIMIT", "2.5")
	got, err := GetFloat("RPC_RATE_LIMIT", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2.5 {
		t.Errorf("expected 2.5, got %v", got)
	}

	t.Setenv("RPC_RATE_LIMIT", "fast")
	if _, err := GetFloat("RPC_RATE_LIMIT", 10); err == nil {
		t.Error("expected error for invalid float")
	}
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{value: "", want: 5 * time.Second},
		{value: "3", want: 3 * time.Second},
		{value: "750ms", want: 750 * time.Millisecond},
		{value: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("CHAIN_CALL_TIMEOUT", tt.value)
			got, err := GetDuration("CHAIN_CALL_TIMEOUT", 5*time.Second)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGetList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	got := GetList("CORS_ALLOWED_ORIGINS", []string{"*"})
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	t.Setenv("CORS_ALLOWED_ORIGINS", " , ")
	if got := GetList("CORS_ALLOWED_ORIGINS", []string{"*"}); !reflect.DeepEqual(got, []string{"*"}) {
		t.Errorf("expected default for blank list, got %v", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"loud", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.value)
			if got := ParseLogLevel(slog.LevelWarn); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
