// Package serial maps human-shareable serial codes to passenger identities so
// transfers and deposits can be addressed without exposing phone numbers.
package serial

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
)

// Codes are three uppercase letters derived from the holder's name plus four
// random digits, e.g. "MUK4821".
const (
	letterCount   = 3
	digitCount    = 4
	maxCollisions = 5
)

// Service errors
var (
	ErrNotFound = errors.New("serial code not found")
)

// Service is the serial-code directory.
type Service interface {
	// Generate assigns a new immutable code to a passenger.
	Generate(ctx context.Context, name string, passengerID uint) (string, error)
	// Resolve returns the passenger id for an active code.
	Resolve(ctx context.Context, code string) (uint, error)
	// CodeFor looks up a passenger's assigned code.
	CodeFor(ctx context.Context, passengerID uint) (string, error)
}

type service struct {
	repo repositories.SerialCodeRepository
}

func NewService(repo repositories.SerialCodeRepository) Service {
	if repo == nil {
		panic("repo is required")
	}
	return &service{repo: repo}
}

func (s *service) Generate(ctx context.Context, name string, passengerID uint) (string, error) {
	prefix := letterPrefix(name)

	for attempt := 0; attempt < maxCollisions; attempt++ {
		code := prefix + randomDigits(digitCount)
		err := s.repo.Create(&models.SerialCode{
			Code:        code,
			PassengerID: passengerID,
			Active:      true,
		})
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, repositories.ErrSerialCodeTaken) {
			return "", fmt.Errorf("failed to assign serial code: %w", err)
		}
	}

	// Exhausted random attempts: fall back to a timestamp-derived suffix so
	// generation always terminates.
	code := prefix + fmt.Sprintf("%04d", time.Now().UnixNano()%10000)
	err := s.repo.Create(&models.SerialCode{
		Code:        code,
		PassengerID: passengerID,
		Active:      true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to assign serial code: %w", err)
	}
	return code, nil
}

func (s *service) Resolve(ctx context.Context, code string) (uint, error) {
	sc, err := s.repo.GetByCode(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, repositories.ErrSerialCodeNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to resolve serial code: %w", err)
	}
	if !sc.Active {
		return 0, ErrNotFound
	}
	return sc.PassengerID, nil
}

func (s *service) CodeFor(ctx context.Context, passengerID uint) (string, error) {
	sc, err := s.repo.GetByPassengerID(passengerID)
	if err != nil {
		if errors.Is(err, repositories.ErrSerialCodeNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up serial code: %w", err)
	}
	return sc.Code, nil
}

// letterPrefix takes the first three letters of the name, uppercased, padding
// with 'X' when the name is short or contains no usable letters.
func letterPrefix(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() == letterCount {
				break
			}
		}
	}
	for b.Len() < letterCount {
		b.WriteByte('X')
	}
	return b.String()
}

func randomDigits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand failure is unrecoverable here
			panic("serial: random source unavailable: " + err.Error())
		}
		b.WriteString(d.String())
	}
	return b.String()
}
