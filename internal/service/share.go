package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/auth"
)

// MaxNickLength bounds guest nicknames; they are shown in the roster and in
// every comment the guest writes.
const MaxNickLength = 32

// ShareService admits guests to a shared session.
//
//	POST /share/join → ShareService.Join → invite token
//	GET  /share/ws   → auth.RequireInvite → channel.Hub
//
// The passphrase is hashed once at construction; the plaintext is not kept.
// An empty passphrase makes the share open to anyone who can reach it.
type ShareService struct {
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	hash      string
	logger    *slog.Logger
}

// NewShareService hashes passphrase and returns the service.
func NewShareService(
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	passphrase string,
	logger *slog.Logger,
) (*ShareService, error) {
	s := &ShareService{tokens: tokens, passwords: passwords, logger: logger}
	if passphrase != "" {
		hash, err := passwords.Hash(passphrase)
		if err != nil {
			return nil, fmt.Errorf("service/share: %w", err)
		}
		s.hash = hash
	}
	return s, nil
}

// Open reports whether joining needs no passphrase.
func (s *ShareService) Open() bool { return s.hash == "" }

// Join checks the passphrase and issues an invite token for nick.
func (s *ShareService) Join(_ context.Context, nick, passphrase string) (string, error) {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return "", apperror.ValidationFailed("nickname", "nickname is required")
	}
	if utf8.RuneCountInString(nick) > MaxNickLength {
		return "", apperror.ValidationFailed("nickname",
			fmt.Sprintf("nickname must be %d characters or fewer", MaxNickLength))
	}

	if s.hash != "" {
		if err := s.passwords.Verify(s.hash, passphrase); err != nil {
			if errors.Is(err, auth.ErrWrongPassphrase) {
				s.logger.Warn("join refused", slog.String("nick", nick))
				return "", apperror.Forbidden("wrong passphrase")
			}
			return "", fmt.Errorf("service/share: %w", err)
		}
	}

	token, err := s.tokens.Generate(nick)
	if err != nil {
		return "", fmt.Errorf("service/share: issuing invite for %s: %w", nick, err)
	}

	s.logger.Info("guest admitted", slog.String("nick", nick))
	return token, nil
}

// ValidateInvite returns the nickname an invite was issued to.
func (s *ShareService) ValidateInvite(token string) (string, error) {
	nick, err := s.tokens.Validate(token)
	if err != nil {
		return "", fmt.Errorf("service/share: %w", err)
	}
	return nick, nil
}
