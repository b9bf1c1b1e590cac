// Package pin guards every money-moving operation with a wallet PIN.
//
// PINs are 4-6 digit numeric codes, stored only as bcrypt hashes. Five
// consecutive failed verifications lock the wallet's PIN for 30 minutes;
// the counter resets when the lockout elapses or a verification succeeds.
package pin

import (
	"context"
	"errors"
	"regexp"
	"time"

	"tiketi/internal/repositories"

	"golang.org/x/crypto/bcrypt"
)

const (
	MaxFailedAttempts = 5
	LockoutDuration   = 30 * time.Minute
)

var pinFormat = regexp.MustCompile(`^\d{4,6}$`)

// Service manages wallet PINs.
type Service interface {
	SetPin(ctx context.Context, walletID uint, pin string) error
	ChangePin(ctx context.Context, walletID uint, oldPin, newPin string) error
	Verify(ctx context.Context, walletID uint, pin string) error
}

type service struct {
	repo repositories.WalletRepository
	now  func() time.Time
}

// NewService creates a new PIN guard.
func NewService(repo repositories.WalletRepository) Service {
	if repo == nil {
		panic("repo is required")
	}
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

func (s *service) SetPin(ctx context.Context, walletID uint, pin string) error {
	if !pinFormat.MatchString(pin) {
		return ErrInvalidPinFormat
	}

	return s.repo.ExecuteInTransaction(func(tx repositories.WalletRepository) error {
		w, err := tx.GetByIDForUpdate(walletID)
		if err != nil {
			if errors.Is(err, repositories.ErrWalletNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		if w.PinSet {
			return ErrPinAlreadySet
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		w.PinHash = string(hash)
		w.PinSet = true
		w.FailedPinAttempts = 0
		w.PinLockedUntil = nil
		return tx.Update(w)
	})
}

func (s *service) ChangePin(ctx context.Context, walletID uint, oldPin, newPin string) error {
	if !pinFormat.MatchString(newPin) {
		return ErrInvalidPinFormat
	}

	if err := s.Verify(ctx, walletID, oldPin); err != nil {
		return err
	}

	return s.repo.ExecuteInTransaction(func(tx repositories.WalletRepository) error {
		w, err := tx.GetByIDForUpdate(walletID)
		if err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(newPin), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		w.PinHash = string(hash)
		w.PinSet = true
		return tx.Update(w)
	})
}

// Verify checks the PIN and maintains the lockout state. The failure counter
// and lock are persisted on the wallet row so restarts do not reset them.
func (s *service) Verify(ctx context.Context, walletID uint, pin string) error {
	if !pinFormat.MatchString(pin) {
		return ErrInvalidPinFormat
	}

	// The verdict is carried out of the closure so a failed attempt still
	// commits its counter update instead of rolling back with the error.
	var verdict error
	err := s.repo.ExecuteInTransaction(func(tx repositories.WalletRepository) error {
		w, err := tx.GetByIDForUpdate(walletID)
		if err != nil {
			if errors.Is(err, repositories.ErrWalletNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		if !w.PinSet {
			return ErrPinNotSet
		}

		now := s.now()
		if w.PinLocked(now) {
			return ErrPinLocked
		}
		if w.PinLockedUntil != nil {
			// Lockout elapsed, counter starts over.
			w.FailedPinAttempts = 0
			w.PinLockedUntil = nil
		}

		if bcrypt.CompareHashAndPassword([]byte(w.PinHash), []byte(pin)) != nil {
			w.FailedPinAttempts++
			if w.FailedPinAttempts >= MaxFailedAttempts {
				lockedUntil := now.Add(LockoutDuration)
				w.PinLockedUntil = &lockedUntil
			}
			if w.PinLockedUntil != nil {
				verdict = ErrPinLocked
			} else {
				verdict = ErrInvalidPin
			}
			return tx.Update(w)
		}

		if w.FailedPinAttempts != 0 {
			w.FailedPinAttempts = 0
			if err := tx.Update(w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return verdict
}
