package models

import (
	"regexp"
	"strings"

	dErrors "signup-api/pkg/domain-errors"
	"signup-api/pkg/platform/validation"
	s "signup-api/pkg/string"
	v "signup-api/pkg/validation"
)

// Field validation messages returned to the signup form.
const (
	MsgFieldsRequired   = "All fields are required"
	MsgNameTooLong      = "Name is too long"
	MsgNameInvalidChars = "Invalid characters in name"
	MsgEmailTooLong     = "Email address is too long"
	MsgEmailInvalidChar = "Email contains invalid characters"
	MsgEmailFormat      = "Invalid email format"
	MsgDomainMismatch   = "Email domain does not match selected organisation"
)

var emailFormat = regexp.MustCompile(`^[A-Za-z0-9._%+'-]+@[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+$`)

// SignupRequest is the decoded signup form.
type SignupRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required"`
	Domain    string `json:"domain" validate:"required"`
}

// Normalize trims every field and lowercases the selected domain.
func (r *SignupRequest) Normalize() {
	if r == nil {
		return
	}
	s.TrimStrings(&r.FirstName, &r.LastName, &r.Email, &r.Domain)
	r.Domain = strings.ToLower(r.Domain)
}

// Validate applies the field rules in order and returns the first failure as a
// CodeInvalidInput error whose message is safe to show the user.
func (r *SignupRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, MsgFieldsRequired)
	}
	if err := v.Validate(r); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, MsgFieldsRequired)
	}
	if validation.ExceedsLength(r.FirstName, validation.MaxNameLength) ||
		validation.ExceedsLength(r.LastName, validation.MaxNameLength) {
		return dErrors.New(dErrors.CodeInvalidInput, MsgNameTooLong)
	}
	if !ValidName(r.FirstName) || !ValidName(r.LastName) {
		return dErrors.New(dErrors.CodeInvalidInput, MsgNameInvalidChars)
	}
	if validation.ExceedsLength(r.Email, validation.MaxEmailLength) {
		return dErrors.New(dErrors.CodeInvalidInput, MsgEmailTooLong)
	}
	if !s.IsASCII(r.Email) {
		return dErrors.New(dErrors.CodeInvalidInput, MsgEmailInvalidChar)
	}
	if !emailFormat.MatchString(r.Email) {
		return dErrors.New(dErrors.CodeInvalidInput, MsgEmailFormat)
	}
	return nil
}

// Canonicalize replaces Email with its normalized form and checks it belongs to
// the selected organisation domain. Call after Validate.
func (r *SignupRequest) Canonicalize() error {
	email, err := NormalizeEmail(r.Email)
	if err != nil {
		return err
	}
	if domainOf(email) != r.Domain {
		return dErrors.New(dErrors.CodeInvalidInput, MsgDomainMismatch)
	}
	r.Email = email
	return nil
}

// ValidName accepts printable ASCII except the HTML-significant characters
// < > " ' &. Apostrophes in names such as O'Brien are rejected.
func ValidName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c > 0x7e {
			return false
		}
		switch c {
		case '<', '>', '"', '\'', '&':
			return false
		}
	}
	return true
}

// NormalizeEmail lowercases an address and drops any "+tag" from the local part
// so one mailbox maps to one identity. It is idempotent.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if !s.IsASCII(email) {
		return "", dErrors.New(dErrors.CodeInvalidInput, MsgEmailInvalidChar)
	}
	email = strings.ToLower(email)

	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return "", dErrors.New(dErrors.CodeInvalidInput, MsgEmailFormat)
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}
	if local == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, MsgEmailFormat)
	}
	return local + "@" + domain, nil
}

func domainOf(email string) string {
	return email[strings.LastIndexByte(email, '@')+1:]
}
