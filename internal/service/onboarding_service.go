package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/amirk1998/serendib-banking/internal/audit"
	"github.com/amirk1998/serendib-banking/internal/models"
	"github.com/amirk1998/serendib-banking/internal/repository"
	"github.com/amirk1998/serendib-banking/pkg/errors"
	"github.com/amirk1998/serendib-banking/pkg/validator"
)

const (
	suggestionCount = 3
	// maxSuggestionSuffix bounds the search for bases that never yield a valid name.
	maxSuggestionSuffix = 1000
)

// OnboardingService registers new customers in the directory
type OnboardingService struct {
	directory   repository.UserDirectory
	validator   *validator.Validator
	auditLogger *audit.Logger
	log         *slog.Logger
}

func NewOnboardingService(deps Deps) *OnboardingService {
	d := deps.withDefaults()
	return &OnboardingService{
		directory:   d.Directory,
		validator:   validator.New(),
		auditLogger: d.Audit,
		log:         d.Logger,
	}
}

// IsRegisteredNIC reports whether a customer with nic already exists
func (s *OnboardingService) IsRegisteredNIC(ctx context.Context, nic string) bool {
	_, err := s.directory.FindByNIC(ctx, nic)
	if err != nil && !stderrors.Is(err, errors.ErrUserNotFound) {
		s.log.Error("directory lookup failed", "error", err)
		return false
	}
	return err == nil
}

// CheckUsername returns nil when username is well formed and free
func (s *OnboardingService) CheckUsername(ctx context.Context, username string) error {
	if err := s.validator.ValidateUsername(username); err != nil {
		return errors.NewAppError(err, "username", errors.CodeValidation)
	}
	taken, err := s.usernameTaken(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return errors.NewAppError(errors.ErrUsernameTaken, "username", errors.CodeConflict)
	}
	return nil
}

func (s *OnboardingService) usernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := s.directory.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, errors.ErrUserNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check username: %w", err)
	}
}

// SuggestUsernames returns the first free names of the form base1, base2, ...
// The base is shortened when base plus suffix would exceed the username
// length limit, so every suggestion passes ValidateUsername.
func (s *OnboardingService) SuggestUsernames(ctx context.Context, base string) []string {
	suggestions := make([]string, 0, suggestionCount)
	for suffix := 1; len(suggestions) < suggestionCount && suffix <= maxSuggestionSuffix; suffix++ {
		candidate := suggestionFor(base, suffix)
		if s.validator.ValidateUsername(candidate) != nil {
			continue
		}
		taken, err := s.usernameTaken(ctx, candidate)
		if err != nil {
			s.log.Error("username suggestion lookup failed", "candidate", candidate, "error", err)
			break
		}
		if !taken {
			suggestions = append(suggestions, candidate)
		}
	}
	return suggestions
}

func suggestionFor(base string, suffix int) string {
	digits := strconv.Itoa(suffix)
	if keep := validator.MaxUsernameLength - len(digits); len(base) > keep {
		base = base[:keep]
	}
	return base + digits
}

func (s *OnboardingService) validateRequest(req *models.OnboardRequest) error {
	checks := []struct {
		field string
		err   error
	}{
		{"nic", s.validator.ValidateNIC(req.NIC)},
		{"account_number", s.validator.ValidateAccountNumber(req.AccountNumber)},
		{"username", s.validator.ValidateUsername(req.Username)},
		{"password", s.validator.ValidatePassword(req.Password)},
		{"mobile", s.validator.ValidateMobile(req.Mobile)},
		{"email", s.validator.ValidateEmail(req.Email)},
	}
	for _, c := range checks {
		if c.err != nil {
			return errors.NewAppError(c.err, c.field, errors.CodeValidation)
		}
	}

	if req.DisplayName == "" {
		return errors.NewAppError(errors.ErrInvalidInput, "display_name", errors.CodeValidation)
	}
	if req.Mobile == "" && req.Email == "" {
		return errors.NewAppError(errors.ErrNoChannel, "contact", errors.CodeValidation)
	}
	return nil
}

// Onboard creates an INITIATED customer from req. The preferred OTP
// channel is mobile when a mobile number was given, otherwise email.
func (s *OnboardingService) Onboard(ctx context.Context, req *models.OnboardRequest) (*models.User, error) {
	req.NIC = s.validator.SanitizeString(req.NIC)
	req.AccountNumber = s.validator.SanitizeString(req.AccountNumber)
	req.Username = s.validator.SanitizeString(req.Username)
	req.DisplayName = s.validator.SanitizeString(req.DisplayName)
	req.Mobile = s.validator.SanitizeString(req.Mobile)
	req.Email = s.validator.SanitizeString(req.Email)

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if s.IsRegisteredNIC(ctx, req.NIC) {
		return nil, errors.NewAppError(errors.ErrUserAlreadyExists, "nic", errors.CodeConflict)
	}
	if err := s.CheckUsername(ctx, req.Username); err != nil {
		return nil, err
	}

	preferred := models.ChannelEmail
	if req.Mobile != "" {
		preferred = models.ChannelMobile
	}

	user := &models.User{
		Username:         req.Username,
		Password:         req.Password,
		DisplayName:      req.DisplayName,
		AccountNumber:    req.AccountNumber,
		NIC:              req.NIC,
		Status:           models.StatusInitiated,
		Mobile:           req.Mobile,
		Email:            req.Email,
		PreferredChannel: preferred,
	}

	if err := s.directory.Add(ctx, user); err != nil {
		if stderrors.Is(err, errors.ErrUsernameTaken) || stderrors.Is(err, errors.ErrUserAlreadyExists) {
			return nil, errors.NewAppError(err, "onboarding", errors.CodeConflict)
		}
		return nil, fmt.Errorf("failed to onboard user: %w", err)
	}

	s.log.Info("user onboarded", "username", user.Username, "preferred_channel", preferred)
	recordAudit(ctx, s.auditLogger, s.log, &audit.Event{
		Username: models.NormalizeUsername(user.Username),
		Action:   audit.ActionUserOnboarded,
		Resource: "onboarding",
		Success:  true,
		Metadata: map[string]string{"preferred_channel": preferred.String()},
	})

	return user, nil
}
