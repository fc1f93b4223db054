package models

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"paymail-bridge/internal/keys"
	dErrors "paymail-bridge/pkg/domain-errors"
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// AliasRecord maps a paymail alias to the identity key that owns it. The proof
// fields are kept as supplied at registration; aliases registered by identity key
// carry none.
type AliasRecord struct {
	Alias       string         `json:"alias"`
	IdentityKey string         `json:"identityKey"`
	Data        []byte         `json:"data,omitempty"`
	Signature   []byte         `json:"signature,omitempty"`
	ProtocolID  *keys.Protocol `json:"protocolID,omitempty"`
	KeyID       string         `json:"keyID,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// ValidAlias reports whether alias is non-empty and uses only letters, digits,
// '_' and '-'.
func ValidAlias(alias string) bool {
	return aliasPattern.MatchString(alias)
}

// Handle returns the paymail handle alias@domain.
func Handle(alias, domain string) string {
	return alias + "@" + domain
}

// ParseHandle splits a paymail handle, percent-encoded or not, and checks that it
// belongs to domain and that the alias uses the registry's charset.
func ParseHandle(handle, domain string) (string, error) {
	if unescaped, err := url.PathUnescape(handle); err == nil {
		handle = unescaped
	}
	alias, host, ok := strings.Cut(handle, "@")
	if !ok || alias == "" {
		return "", dErrors.New(dErrors.CodeValidation, "Invalid paymail")
	}
	if !strings.EqualFold(host, domain) {
		return "", dErrors.New(dErrors.CodeValidation, "Invalid domain")
	}
	if !ValidAlias(alias) {
		return "", dErrors.New(dErrors.CodeValidation, "Invalid alias format")
	}
	return alias, nil
}
