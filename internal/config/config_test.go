package config

import "testing"

func validConfig() *Config {
	return &Config{
		JWTSecret:                "this-is-a-sufficiently-long-jwt-secret-value",
		APIKeySalt:               "this-is-a-sufficiently-long-salt-value-too",
		PostgresPassword:         "s0m3-real-password",
		JWTExpireMinutes:         60,
		MaxRequestBodySize:       1048576,
		RateLimitPerMinute:       1000,
		RateLimitUnauthenticated: 10,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "too-short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short JWT secret")
	}
}

func TestValidate_PlaceholderSecret(t *testing.T) {
	cases := []string{
		"GENERATE_ME_PLEASE_1234567890123456789",
		"change-me-change-me-change-me-change-me",
		"placeholder-placeholder-placeholder-xx",
	}
	for _, v := range cases {
		cfg := validConfig()
		cfg.JWTSecret = v
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected placeholder rejection for %q", v)
		}
	}
}

func TestValidate_PostgresPasswordLiteral(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "password"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of literal password")
	}
}

func TestValidate_PostgresPasswordEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of empty postgres password")
	}
}

func TestValidate_JWTExpireRange(t *testing.T) {
	cfg := validConfig()
	cfg.JWTExpireMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of zero JWT expiry")
	}
	cfg.JWTExpireMinutes = 1441
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of over-range JWT expiry")
	}
}

func TestValidate_BodySizeRange(t *testing.T) {
	cfg := validConfig()
	cfg.MaxRequestBodySize = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of undersized body limit")
	}
	cfg.MaxRequestBodySize = 100 * 1024 * 1024
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of oversized body limit")
	}
}

func TestListenAddr(t *testing.T) {
	cfg := &Config{Host: "0.0.0.0", Port: 8080}
	if got := cfg.ListenAddr(); got != "0.0.0.0:8080" {
		t.Fatalf("unexpected listen addr: %s", got)
	}
}
