package egress

import (
	"testing"

	"github.com/goliatone/go-relay/core"
)

func TestValidator_StrictRejectsInternalTargets(t *testing.T) {
	validator := New(Config{Mode: core.DeploymentModeStrict})

	cases := []struct {
		name   string
		url    string
		reason string
	}{
		{"loopback ip", "http://127.0.0.1/x", ReasonBlockedHost},
		{"localhost", "http://localhost:8080/callback", ReasonBlockedHost},
		{"unspecified", "http://0.0.0.0/callback", ReasonBlockedHost},
		{"ipv6 loopback", "http://[::1]/callback", ReasonBlockedHost},
		{"aws metadata", "http://169.254.169.254/latest/meta-data/", ReasonMetadataBlocked},
		{"gcp metadata", "http://metadata.google.internal/computeMetadata/v1/", ReasonMetadataBlocked},
		{"private range", "http://10.0.0.5/callback", ReasonPrivateIPBlocked},
		{"rfc1918 192", "https://192.168.1.20/hook", ReasonPrivateIPBlocked},
		{"link local", "http://169.254.10.10/hook", ReasonPrivateIPBlocked},
		{"ftp scheme", "ftp://evil.com/", ReasonInvalidScheme},
		{"file scheme", "file:///etc/passwd", ReasonInvalidScheme},
		{"empty", "", ReasonMalformedURL},
		{"no hostname", "http:///path-only", ReasonMalformedURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(tc.url)
			if err == nil {
				t.Fatalf("expected %q to be rejected", tc.url)
			}
			if reason := Reason(err); reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, reason)
			}
		})
	}
}

func TestValidator_StrictAcceptsPublicHTTPS(t *testing.T) {
	validator := New(Config{Mode: core.DeploymentModeStrict})

	for _, url := range []string{
		"https://example.com/callback",
		"http://hooks.example.com:9000/v1/receive",
		"https://203.0.113.10/callback",
	} {
		if err := validator.Validate(url); err != nil {
			t.Fatalf("expected %q accepted, got %v", url, err)
		}
	}
}

func TestValidator_PermissiveAllowsLocalButNotMetadata(t *testing.T) {
	validator := New(Config{Mode: core.DeploymentModePermissive})

	if err := validator.Validate("http://127.0.0.1:9000/test"); err != nil {
		t.Fatalf("expected loopback accepted in permissive mode, got %v", err)
	}
	if err := validator.Validate("http://localhost/test"); err != nil {
		t.Fatalf("expected localhost accepted in permissive mode, got %v", err)
	}

	err := validator.Validate("http://169.254.169.254/latest/meta-data/")
	if err == nil {
		t.Fatalf("expected metadata endpoint rejected in every mode")
	}
	if reason := Reason(err); reason != ReasonMetadataBlocked {
		t.Fatalf("expected metadata_blocked, got %q", reason)
	}
}

func TestValidator_SchemeCheckedBeforeParsing(t *testing.T) {
	validator := New(Config{Mode: core.DeploymentModeStrict})

	err := validator.Validate("gopher://127.0.0.1/payload")
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if reason := Reason(err); reason != ReasonInvalidScheme {
		t.Fatalf("expected scheme rejection to win over host policy, got %q", reason)
	}
}
