package checkout

import (
	"net/mail"
	"strings"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
)

const minTelegramHandle = 3

// ValidateAddress returns nil or a *ValidationError. Every field except
// Address2 is required.
func ValidateAddress(a domain.ShippingInfo) error {
	fields := map[string]string{}

	required := []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"address1", a.Address1},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
		{"country", a.Country},
		{"email", a.Email},
		{"telegramHandle", a.TelegramHandle},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields[f.name] = "required"
		}
	}

	if _, ok := fields["email"]; !ok && !validEmail(a.Email) {
		fields["email"] = "invalid email address"
	}
	if _, ok := fields["telegramHandle"]; !ok && len([]rune(strings.TrimSpace(a.TelegramHandle))) < minTelegramHandle {
		fields["telegramHandle"] = "must be at least 3 characters"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// validEmail accepts a bare address only, no display name.
func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".")
}

func normalizeAddress(a domain.ShippingInfo) domain.ShippingInfo {
	trim := strings.TrimSpace
	return domain.ShippingInfo{
		FirstName:      trim(a.FirstName),
		LastName:       trim(a.LastName),
		Address1:       trim(a.Address1),
		Address2:       trim(a.Address2),
		City:           trim(a.City),
		State:          trim(a.State),
		ZipCode:        trim(a.ZipCode),
		Country:        trim(a.Country),
		Email:          trim(a.Email),
		TelegramHandle: trim(a.TelegramHandle),
	}
}
