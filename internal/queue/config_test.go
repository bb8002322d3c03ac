package queue

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{Name: "image", Concurrency: 2, MaxAttempts: 3, LockDuration: 5 * time.Minute, Retention: time.Hour}

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "no name", mutate: func(c *Config) { c.Name = "" }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }},
		{name: "too much concurrency", mutate: func(c *Config) { c.Concurrency = MaxConcurrency + 1 }},
		{name: "zero attempts", mutate: func(c *Config) { c.MaxAttempts = 0 }},
		{name: "sub-second lock", mutate: func(c *Config) { c.LockDuration = 500 * time.Millisecond }},
		{name: "negative backoff", mutate: func(c *Config) { c.Backoff = -time.Second }},
		{name: "short retention", mutate: func(c *Config) { c.Retention = time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error for %+v", cfg)
			}
		})
	}
}

func TestRetryDelayDoubles(t *testing.T) {
	cfg := Config{Backoff: 10 * time.Second}
	cases := map[int]time.Duration{
		0:  0,
		1:  10 * time.Second,
		2:  20 * time.Second,
		3:  40 * time.Second,
		20: time.Hour,
	}
	for attempts, want := range cases {
		if got := cfg.RetryDelay(attempts); got != want {
			t.Fatalf("RetryDelay(%d) = %s, want %s", attempts, got, want)
		}
	}
	if got := (Config{}).RetryDelay(3); got != 0 {
		t.Fatalf("zero backoff should retry immediately, got %s", got)
	}
}
