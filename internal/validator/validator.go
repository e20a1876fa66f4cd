package validator

import (
	"errors"
	"regexp"

	"zenux/internal/models"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrUnknownType     = errors.New("unknown transaction type")
)

var (
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return ErrInvalidCurrency
	}
	return nil
}

func ValidateTransactionType(txType string) error {
	if !models.IsKnownType(txType) {
		return ErrUnknownType
	}
	return nil
}
