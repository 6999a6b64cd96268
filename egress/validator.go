// Package egress vets caller-supplied callback destinations before they
// are stored or dialed, so the service cannot be aimed at internal
// network targets.
package egress

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
)

// Machine-readable rejection reasons surfaced to callers.
const (
	ReasonInvalidScheme    = "invalid_scheme"
	ReasonMalformedURL     = "malformed_url"
	ReasonBlockedHost      = "blocked_host"
	ReasonPrivateIPBlocked = "private_ip_blocked"
	ReasonMetadataBlocked  = "metadata_blocked"
)

// metadataHosts are blocked in every deployment mode; a callback aimed
// at a cloud metadata endpoint is never legitimate.
var metadataHosts = map[string]struct{}{
	"169.254.169.254":          {},
	"metadata.google.internal": {},
	"metadata.azure.com":       {},
}

// blockedHosts applies in strict mode only, so local testing against
// 127.0.0.1 stays possible in permissive deployments.
var blockedHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"::1":       {},
}

// Validator checks a callback URL against scheme, hostname, and IP-range
// policy. The check runs once against the literal hostname: it does not
// re-resolve at dial time, so a hostname that flips from a public to a
// private address between validation and delivery (DNS rebinding) is not
// caught. That gap is inherited deliberately; closing it would require
// pinning resolution into the dialer.
type Validator struct {
	mode core.DeploymentMode
}

type Config struct {
	Mode core.DeploymentMode
}

func New(cfg Config) *Validator {
	mode := cfg.Mode
	if mode != core.DeploymentModeStrict {
		mode = core.DeploymentModePermissive
	}
	return &Validator{mode: mode}
}

// FromConfig builds a validator from the resolved deployment configuration.
func FromConfig(cfg core.Config) *Validator {
	return New(Config{Mode: cfg.DeploymentMode()})
}

// Validate applies the policy rules in order, first match wins.
func (v *Validator) Validate(rawURL string) error {
	if v == nil {
		return rejection(ReasonMalformedURL, "egress validator is not configured", rawURL)
	}
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return rejection(ReasonMalformedURL, "callback url is required", rawURL)
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return rejection(ReasonInvalidScheme, "callback url must use http or https", rawURL)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return rejection(ReasonMalformedURL, "callback url is malformed", rawURL)
	}
	hostname := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if hostname == "" {
		return rejection(ReasonMalformedURL, "callback url has no hostname", rawURL)
	}

	if _, blocked := metadataHosts[hostname]; blocked {
		return rejection(ReasonMetadataBlocked, "callbacks to cloud metadata endpoints are not allowed", rawURL)
	}

	if v.mode != core.DeploymentModeStrict {
		return nil
	}

	if _, blocked := blockedHosts[hostname]; blocked {
		return rejection(ReasonBlockedHost, "callbacks to localhost or internal hosts are not allowed", rawURL)
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return rejection(ReasonPrivateIPBlocked, "callbacks to private address ranges are not allowed", rawURL)
		}
	}
	return nil
}

// Reason extracts the machine-readable rejection code from a validation
// error, or "" when the error did not come from this package.
func Reason(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ""
	}
	if richErr.Metadata == nil {
		return ""
	}
	reason, _ := richErr.Metadata["reason"].(string)
	return reason
}

func rejection(reason string, message string, rawURL string) error {
	return goerrors.New(fmt.Sprintf("egress: invalid callback url: %s", message), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorInvalidCallback).
		WithMetadata(map[string]any{
			"reason": reason,
			"url":    strings.TrimSpace(rawURL),
		})
}

var _ core.EgressValidator = (*Validator)(nil)
