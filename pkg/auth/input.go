package auth

import (
	"html"
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/tendant/simple-saas-admin/internal/config"
	"github.com/tendant/simple-saas-admin/pkg/domain"
)

// Common disposable email domains to block (can be extended)
var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
}

// Email validation regex (stricter than RFC 5322 for practical use)
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

const (
	maxEmailLength       = 254 // RFC 5321
	defaultNameMaxLength = 255
)

// Validator normalizes and checks user-supplied account fields. A nil
// Validator applies the lenient defaults.
type Validator struct {
	StrictEmail     bool
	BlockDisposable bool
	NameMaxLength   int
	Policy          PasswordPolicy
}

// NewValidator builds a Validator from configuration.
func NewValidator(v config.ValidationConfig, p config.PasswordPolicyConfig) *Validator {
	return &Validator{
		StrictEmail:     v.StrictEmailValidation,
		BlockDisposable: v.BlockDisposableEmail,
		NameMaxLength:   v.NameMaxLength,
		Policy: PasswordPolicy{
			MinLength:        p.MinLength,
			RequireUppercase: p.RequireUppercase,
			RequireLowercase: p.RequireLowercase,
			RequireNumber:    p.RequireNumber,
			RequireSpecial:   p.RequireSpecial,
		},
	}
}

// Email validates an address and returns its normalized form.
func (v *Validator) Email(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", domain.BadRequest(domain.SubsystemUserLifecycle, "email address is required")
	}
	if len(normalized) > maxEmailLength {
		return "", domain.BadRequest(domain.SubsystemUserLifecycle, "email address is too long (max %d characters)", maxEmailLength)
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", domain.ErrInvalidEmail
	}

	if v != nil && v.StrictEmail && !emailRegex.MatchString(addr.Address) {
		return "", domain.ErrInvalidEmail
	}

	if v != nil && v.BlockDisposable && disposableDomains[emailDomain(addr.Address)] {
		return "", domain.BadRequest(domain.SubsystemUserLifecycle, "disposable email addresses are not allowed")
	}

	return normalized, nil
}

// Password checks a new password against the policy.
func (v *Validator) Password(password string) error {
	if password == "" {
		return domain.BadRequest(domain.SubsystemUserLifecycle, "password is required")
	}
	if v == nil {
		return nil
	}
	return v.Policy.Validate(password)
}

// Name trims and escapes a display name and enforces its length.
func (v *Validator) Name(field, name string) (string, error) {
	max := defaultNameMaxLength
	if v != nil && v.NameMaxLength > 0 {
		max = v.NameMaxLength
	}

	name = SanitizeName(name)
	if name == "" {
		return "", domain.BadRequest("", "%s is required", field)
	}
	if len(name) > max {
		return "", domain.BadRequest("", "%s must be at most %d characters long", field, max)
	}
	return name, nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeName trims whitespace, drops control characters and escapes HTML.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return html.EscapeString(name)
}

func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// Validate checks if a password meets the policy requirements.
func (p PasswordPolicy) Validate(password string) error {
	if p.MinLength > 0 && len(password) < p.MinLength {
		return domain.BadRequest(domain.SubsystemUserLifecycle, "password must be at least %d characters long", p.MinLength)
	}
	if p.RequireUppercase && !strings.ContainsFunc(password, unicode.IsUpper) {
		return domain.BadRequest(domain.SubsystemUserLifecycle, "password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !strings.ContainsFunc(password, unicode.IsLower) {
		return domain.BadRequest(domain.SubsystemUserLifecycle, "password must contain at least one lowercase letter")
	}
	if p.RequireNumber && !strings.ContainsFunc(password, unicode.IsDigit) {
		return domain.BadRequest(domain.SubsystemUserLifecycle, "password must contain at least one number")
	}
	if p.RequireSpecial && !strings.ContainsFunc(password, isSpecial) {
		return domain.BadRequest(domain.SubsystemUserLifecycle, "password must contain at least one special character")
	}
	return nil
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}
