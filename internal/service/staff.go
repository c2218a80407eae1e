package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/eric2umeh/frontbill/internal/model"
)

// ErrInvalidCredentials is returned when the login or password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// RegisterStaff registers a new staff member. An empty role defaults to
// front desk.
func (s *Service) RegisterStaff(ctx context.Context, login, password string, role model.StaffRole) (int64, error) {
	if role == "" {
		role = model.RoleFrontDesk
	}
	if !role.Valid() {
		return 0, fmt.Errorf("unknown staff role %q", role)
	}

	hashed := hashPassword(login, password)
	return s.repo.CreateStaff(ctx, login, hashed, role)
}

// AuthenticateStaff verifies the login and password of a staff member and
// returns the stored record.
func (s *Service) AuthenticateStaff(ctx context.Context, login, password string) (*model.Staff, error) {
	st, err := s.repo.GetStaffByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(st.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return st, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}
