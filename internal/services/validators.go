package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// subdomainPattern allows lowercase alphanumerics and inner hyphens, 2-50 chars
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,48}[a-z0-9])?$`)

// reservedSubdomains can never be claimed by a tenant
var reservedSubdomains = map[string]bool{
	"www":     true,
	"api":     true,
	"app":     true,
	"admin":   true,
	"portal":  true,
	"mail":    true,
	"smtp":    true,
	"ftp":     true,
	"static":  true,
	"cdn":     true,
	"suporte": true,
	"ajuda":   true,
	"blog":    true,
	"dev":     true,
	"staging": true,
	"teste":   true,
	"demo":    true,
	"sistema": true,
}

// SubdomainStatus is the typed outcome of subdomain validation
type SubdomainStatus int

const (
	SubdomainOK SubdomainStatus = iota
	SubdomainInvalid
	SubdomainDuplicate
)

// SubdomainValidation carries the typed validation outcome so callers can
// classify failures (metrics, user messaging) from the same call that
// validated, instead of re-running the uniqueness query.
type SubdomainValidation struct {
	Status     SubdomainStatus
	Normalized string
	Message    string
}

// Ok reports whether the subdomain passed all checks
func (v SubdomainValidation) Ok() bool {
	return v.Status == SubdomainOK
}

// SubdomainLookup is the uniqueness-check surface of the tenant repository
type SubdomainLookup interface {
	SubdomainExists(ctx context.Context, subdominio string, excludeID *uuid.UUID) (bool, error)
}

// NormalizeSubdomain lowercases and trims a candidate subdomain
func NormalizeSubdomain(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateSubdomainFormat checks format and the reserved list only. Pure,
// no persistence access.
func ValidateSubdomainFormat(raw string) SubdomainValidation {
	normalized := NormalizeSubdomain(raw)

	if normalized == "" {
		return SubdomainValidation{Status: SubdomainInvalid, Message: "subdomínio é obrigatório"}
	}
	if len(normalized) < 2 {
		return SubdomainValidation{Status: SubdomainInvalid, Normalized: normalized, Message: "subdomínio deve ter pelo menos 2 caracteres"}
	}
	if !subdomainPattern.MatchString(normalized) {
		return SubdomainValidation{Status: SubdomainInvalid, Normalized: normalized, Message: "subdomínio deve conter apenas letras minúsculas, números e hífens"}
	}
	if reservedSubdomains[normalized] {
		return SubdomainValidation{Status: SubdomainInvalid, Normalized: normalized, Message: fmt.Sprintf("subdomínio '%s' é reservado", normalized)}
	}
	return SubdomainValidation{Status: SubdomainOK, Normalized: normalized}
}

// ValidateSubdomain runs the full check: format, reserved list, and
// case-insensitive uniqueness (excluding the tenant being edited, if any).
// The returned error is reserved for infrastructure failures; business
// outcomes are expressed in the typed result.
func ValidateSubdomain(ctx context.Context, lookup SubdomainLookup, raw string, excludeID *uuid.UUID) (SubdomainValidation, error) {
	result := ValidateSubdomainFormat(raw)
	if !result.Ok() {
		return result, nil
	}

	exists, err := lookup.SubdomainExists(ctx, result.Normalized, excludeID)
	if err != nil {
		return result, fmt.Errorf("failed to check subdomain uniqueness: %w", err)
	}
	if exists {
		return SubdomainValidation{
			Status:     SubdomainDuplicate,
			Normalized: result.Normalized,
			Message:    fmt.Sprintf("subdomínio '%s' já está em uso", result.Normalized),
		}, nil
	}
	return result, nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether the string is a plausible email address
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// NormalizeEmail trims and lowercases an email for matching purposes
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
