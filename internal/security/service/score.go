package service

import (
	"strings"
	"unicode"

	"github.com/shieldhq/sentinel/internal/security/domain"
)

// ScoreInput holds the factors of the composite security score.
type ScoreInput struct {
	TwoFactorEnabled   bool
	PasswordStrength   domain.PasswordStrength
	ActiveAlerts       int64
	ActiveSessions     int
	RecentFailedLogins int64
}

// ComputeSecurityScore applies the additive-deduction model: start at 100,
// subtract per-factor penalties, clamp at zero.
func ComputeSecurityScore(in ScoreInput) int {
	score := 100

	if !in.TwoFactorEnabled {
		score -= 25
	}

	switch in.PasswordStrength {
	case domain.PasswordWeak:
		score -= 20
	case domain.PasswordMedium:
		score -= 10
	}

	score -= minInt(5*int(in.ActiveAlerts), 25)
	score -= minInt(2*int(in.RecentFailedLogins), 10)

	// The first session is free; each extra concurrent session costs 3.
	if in.ActiveSessions > 1 {
		score -= minInt(3*(in.ActiveSessions-1), 15)
	}

	if score < 0 {
		score = 0
	}
	return score
}

// ClassifyPasswordStrength scores a candidate password on length and
// character-category coverage.
func ClassifyPasswordStrength(password string) domain.PasswordStrength {
	points := 0

	switch {
	case len(password) >= 12:
		points += 2
	case len(password) >= 8:
		points++
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune("!@#$%^&*()-_=+[]{};:'\",.<>/?`~\\|", r):
			special = true
		}
	}
	for _, present := range []bool{upper, lower, digit, special} {
		if present {
			points++
		}
	}

	switch {
	case points >= 5:
		return domain.PasswordStrong
	case points >= 3:
		return domain.PasswordMedium
	default:
		return domain.PasswordWeak
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
