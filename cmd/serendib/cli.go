package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/amirk1998/serendib-banking/internal/models"
	"github.com/amirk1998/serendib-banking/internal/service"
	"github.com/amirk1998/serendib-banking/pkg/errors"
	"github.com/amirk1998/serendib-banking/pkg/validator"
)

const displayTimeFormat = "2006-01-02 15:04:05"

var errExit = stderrors.New("exit requested")

var check = validator.New()

// runCLI runs the interactive menu until the user exits or input closes
func (app *Application) runCLI(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		app.showMainMenu()
		choice, err := app.readLine("Select option: ")
		if err != nil {
			return
		}

		switch choice {
		case "1":
			err = app.handleOnboarding(ctx)
		case "2":
			err = app.handleLogin(ctx)
		case "3":
			err = errExit
		default:
			app.println("Invalid option!")
		}

		if err != nil {
			if stderrors.Is(err, errExit) {
				app.println("Goodbye!")
			}
			return
		}
	}
}

func (app *Application) showMainMenu() {
	app.println("\n=== Serendib Digital Banking ===")
	app.println("1. New Customer Onboarding")
	app.println("2. Existing Customer Login")
	app.println("3. Exit")
}

func (app *Application) println(a ...any) {
	fmt.Fprintln(app.out, a...)
}

func (app *Application) printf(format string, a ...any) {
	fmt.Fprintf(app.out, format, a...)
}

// readLine prints prompt and returns the next trimmed line, or io.EOF
// once input is closed.
func (app *Application) readLine(prompt string) (string, error) {
	fmt.Fprint(app.out, prompt)
	if !app.in.Scan() {
		if err := app.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(app.in.Text()), nil
}

// promptUntilValid re-prompts until valid accepts the input
func (app *Application) promptUntilValid(prompt, errorMessage string, valid func(string) bool) (string, error) {
	for {
		input, err := app.readLine(prompt)
		if err != nil {
			return "", err
		}
		if valid(input) {
			return input, nil
		}
		app.println("Error: " + errorMessage)
	}
}

func accepts(check func(string) error) func(string) bool {
	return func(s string) bool { return check(s) == nil }
}

func (app *Application) handleOnboarding(ctx context.Context) error {
	app.println("\n=== New Customer Onboarding ===")

	if _, err := app.promptUntilValid("Choose language (1. English): ", "Invalid choice",
		func(s string) bool { return s == "1" }); err != nil {
		return err
	}
	app.println("Selected language: English")

	nic, err := app.promptUntilValid(
		"Enter NIC/Passport number (e.g., 123456789V, 123456789012, P1234567, OL1234567, D1234567): ",
		"Invalid NIC/Passport format", accepts(check.ValidateNIC))
	if err != nil {
		return err
	}

	if app.authService.IsOnboardingUserLocked(ctx, nic) {
		until, _ := app.authService.OnboardingUserLockedUntil(ctx, nic)
		app.printf("Error: Onboarding is temporarily locked until %s for this user!\n", until.Local().Format(displayTimeFormat))
		return nil
	}

	account, err := app.promptUntilValid("Enter CASA account number (format ACCXXXXXX): ",
		"Invalid account format", accepts(check.ValidateAccountNumber))
	if err != nil {
		return err
	}

	if app.onboarding.IsRegisteredNIC(ctx, nic) {
		app.println("Error: Account already registered! Please log in.")
		return nil
	}

	app.println("\nTerms & Conditions: " + app.config.TermsConditionsURL)
	accept, err := app.promptUntilValid("Do you accept the terms? (Y/N): ", "Please enter Y/N",
		func(s string) bool { return strings.EqualFold(s, "y") || strings.EqualFold(s, "n") })
	if err != nil {
		return err
	}
	if !strings.EqualFold(accept, "y") {
		app.println("Onboarding cancelled. Terms not accepted.")
		return nil
	}

	var mobile, email string
	for mobile == "" && email == "" {
		if mobile, err = app.promptUntilValid("Enter mobile number (optional): ",
			"Invalid mobile number format (must be 10 digits or empty)", accepts(check.ValidateMobile)); err != nil {
			return err
		}
		if email, err = app.promptUntilValid("Enter email (optional): ",
			"Invalid email format (must be valid email or empty)", accepts(check.ValidateEmail)); err != nil {
			return err
		}
		if mobile == "" && email == "" {
			app.println("At least one contact method (mobile or email) is required!")
		}
	}

	contact := &models.User{Mobile: mobile, Email: email}
	result, err := app.verifyOTP(ctx, nic, contact.ContactChannels())
	if err != nil {
		return err
	}
	switch result {
	case otpExhausted:
		if err := app.authService.LockOnboardingUser(ctx, nic); err != nil {
			app.log.Error("failed to lock onboarding", "error", err)
		}
		return nil
	case otpFailed:
		return nil
	}

	if err := app.handleVerificationMethod(contact); err != nil {
		return err
	}

	username, err := app.handleUsernameCreation(ctx)
	if err != nil {
		return err
	}
	password, err := app.handlePasswordCreation()
	if err != nil {
		return err
	}
	displayName, err := app.promptUntilValid("Enter display name: ", "Name cannot be empty",
		func(s string) bool { return s != "" })
	if err != nil {
		return err
	}

	user, err := app.onboarding.Onboard(ctx, &models.OnboardRequest{
		NIC:           nic,
		AccountNumber: account,
		Username:      username,
		Password:      password,
		DisplayName:   displayName,
		Mobile:        mobile,
		Email:         email,
	})
	if err != nil {
		app.printf("Onboarding failed: %v\n", err)
		return nil
	}

	app.println("\n=== Onboarding Successful ===")
	app.println("Welcome " + user.DisplayName)
	return app.handleLogin(ctx)
}

type otpResult int

const (
	otpVerified otpResult = iota
	otpFailed
	otpExhausted
)

// verifyOTP issues a code to sessionKey and runs the attempt loop. Locking
// on otpExhausted is left to the caller.
func (app *Application) verifyOTP(ctx context.Context, sessionKey string, channels models.ChannelSet) (otpResult, error) {
	if err := app.otpService.Issue(ctx, sessionKey, channels); err != nil {
		if stderrors.Is(err, errors.ErrRateLimitExceeded) {
			app.println("Too many code requests. Please try again later.")
		} else {
			app.printf("Could not send a code: %v\n", err)
		}
		return otpFailed, nil
	}
	app.printf("OTP valid for %d seconds\n", int(app.policy.OTPValidity.Seconds()))

	outcome, err := app.otpService.VerifyChallenge(ctx, sessionKey, app.policy.MaxOTPAttempts, &otpPrompter{app: app})
	if err != nil {
		return otpFailed, err
	}

	switch outcome {
	case service.OutcomeVerified:
		return otpVerified, nil
	case service.OutcomeExpired:
		app.println("OTP expired!")
		return otpFailed, nil
	default:
		app.printf("Maximum attempts reached. Account locked for %d hours.\n", int(app.policy.LockDuration.Hours()))
		return otpExhausted, nil
	}
}

func (app *Application) handleVerificationMethod(contact *models.User) error {
	app.println("\nChoose verification method:")
	app.println("1. Contact Call Center")
	app.println("2. Visit Branch")
	method, err := app.promptUntilValid("Select (1-2): ", "Invalid choice",
		func(s string) bool { return s == "1" || s == "2" })
	if err != nil {
		return err
	}

	app.println("\nVerification instructions:")
	if method == "1" {
		app.println("Please call our 24/7 support center at +94 11 123 4567")
		app.println("Have your NIC/Passport and account details ready")
	} else {
		app.println("Visit any Serendib Bank branch with:")
		app.println("- Original NIC/Passport")
		app.println("- Account statement (if available)")
	}

	if primary, ok := contact.ContactChannels().Primary(); ok {
		app.printf("\n[System] Verification confirmation sent via %s.\n", primary)
	}
	return nil
}

func (app *Application) handleUsernameCreation(ctx context.Context) (string, error) {
	for {
		base, err := app.promptUntilValid("Create username (4-12 alphanumeric chars): ",
			"Invalid format", accepts(check.ValidateUsername))
		if err != nil {
			return "", err
		}

		err = app.onboarding.CheckUsername(ctx, base)
		if err == nil {
			return base, nil
		}
		if !stderrors.Is(err, errors.ErrUsernameTaken) {
			app.printf("Error: %v\n", err)
			continue
		}

		suggestions := app.onboarding.SuggestUsernames(ctx, base)
		app.println("Username taken! Suggestions: " + strings.Join(suggestions, ", "))
		choice, err := app.readLine(fmt.Sprintf("Choose suggestion (1-%d) or press Enter to try again: ", len(suggestions)))
		if err != nil {
			return "", err
		}
		for i, s := range suggestions {
			if choice == fmt.Sprint(i+1) {
				return s, nil
			}
		}
	}
}

func (app *Application) handlePasswordCreation() (string, error) {
	password, err := app.promptUntilValid("Create password (min 8 chars, mix letters/numbers): ",
		"Invalid format", accepts(check.ValidatePassword))
	if err != nil {
		return "", err
	}
	if _, err := app.promptUntilValid("Confirm password: ", "Must match password",
		func(s string) bool { return s == password }); err != nil {
		return "", err
	}
	return password, nil
}

func (app *Application) handleLogin(ctx context.Context) error {
	app.println("\n=== Secure Login ===")
	username, err := app.promptUntilValid("Username: ", "Required field", func(s string) bool { return s != "" })
	if err != nil {
		return err
	}

	app.println("\nSelect an option:")
	app.println("1. Enter Password")
	app.println("2. Forgot Password")
	choice, err := app.promptUntilValid("Select (1-2): ", "Invalid choice",
		func(s string) bool { return s == "1" || s == "2" })
	if err != nil {
		return err
	}
	if choice == "2" {
		return app.handlePasswordReset(ctx, username)
	}

	password, err := app.promptUntilValid("Password (min 8 chars, mix letters/numbers): ",
		"Invalid format", accepts(check.ValidatePassword))
	if err != nil {
		return err
	}

	user, err := app.authService.ValidateCredentials(ctx, username, password)
	if err != nil {
		if stderrors.Is(err, errors.ErrRateLimitExceeded) {
			app.println("Too many login attempts. Please try again later.")
		} else {
			app.println("Invalid credentials or account locked")
		}
		return nil
	}

	app.println("\n=== Two-Factor Authentication ===")
	channel, ok, err := app.selectOTPChannel(user)
	if err != nil || !ok {
		return err
	}

	result, err := app.verifyOTP(ctx, user.Username, models.Channels(channel))
	if err != nil {
		return err
	}
	if result != otpVerified {
		if result == otpExhausted {
			if err := app.authService.LockUser(ctx, user); err != nil {
				app.log.Error("failed to lock user", "error", err)
			}
		}
		app.println("Login failed due to OTP validation errors")
		return nil
	}

	app.println("\n=== Login Successful ===")
	return app.showDashboard(ctx, user)
}

func (app *Application) selectOTPChannel(user *models.User) (models.Channel, bool, error) {
	switch channels := user.ContactChannels(); len(channels) {
	case 0:
		app.println("No contact method available for OTP.")
		return "", false, nil
	case 1:
		return channels[0], true, nil
	}

	app.println("Select OTP channel:")
	app.printf("1. Mobile (%s)\n", user.Mobile)
	app.printf("2. Email (%s)\n", user.Email)
	choice, err := app.readLine("Choice: ")
	if err != nil {
		return "", false, err
	}
	switch choice {
	case "1":
		return models.ChannelMobile, true, nil
	case "2":
		return models.ChannelEmail, true, nil
	default:
		app.println("Invalid choice. Defaulting to mobile.")
		return models.ChannelMobile, true, nil
	}
}

func (app *Application) showDashboard(ctx context.Context, user *models.User) error {
	portfolio := models.SamplePortfolio()

	app.println("\n=== Financial Dashboard ===")
	app.printf("Welcome, %s\n", user.DisplayName)
	app.println("Account Balances:")
	for _, h := range portfolio.Accounts {
		app.printf("- %s: $%.2f\n", h.Name, h.Amount)
	}
	app.println("\nActive Loans:")
	for _, h := range portfolio.Loans {
		app.printf("- %s: $%.2f\n", h.Name, h.Amount)
	}
	app.println("\nCredit Cards:")
	for _, h := range portfolio.CreditCards {
		app.printf("- %s: $%.2f available\n", h.Name, h.Amount)
	}

	history, err := app.auditLogger.LoginHistory(ctx, user.Username, 5)
	if err != nil {
		app.log.Error("failed to load login history", "error", err)
	} else if len(history) > 0 {
		app.println("\nRecent Sign-in Activity:")
		for _, attempt := range history {
			status := "failed"
			if attempt.Success {
				status = "success"
			}
			app.printf("- %s %s\n", attempt.Timestamp.Local().Format(displayTimeFormat), status)
		}
	}

	_, err = app.readLine("\nPress Enter to logout...")
	return err
}

func (app *Application) handlePasswordReset(ctx context.Context, username string) error {
	user, err := app.directory.FindByUsername(ctx, username)
	if err != nil {
		app.println("User not found")
		return nil
	}

	app.println("\n=== Password Reset ===")
	channel := models.ChannelMobile
	if user.Email != "" {
		channel = models.ChannelEmail
	}

	if err := app.authService.GenerateResetToken(ctx, user.Username, channel); err != nil {
		app.printf("Could not send a reset token: %v\n", err)
		return nil
	}

	token, err := app.promptUntilValid("Enter reset token: ", "6 digits required", validator.IsOTPFormat)
	if err != nil {
		return err
	}
	if !app.authService.IsResetTokenMatch(ctx, user.Username, token) {
		app.println("Invalid Reset Token")
		return nil
	}
	if app.authService.IsResetTokenExpired(ctx, user.Username, token) {
		app.println("Reset Token Expired")
		return nil
	}

	password, err := app.handlePasswordCreation()
	if err != nil {
		return err
	}

	switch err := app.authService.ResetPassword(ctx, user.Username, token, password); {
	case err == nil:
		app.println("Password reset successful")
	case stderrors.Is(err, errors.ErrResetTokenExpired):
		app.println("Reset Token Expired")
	case stderrors.Is(err, errors.ErrInvalidResetToken):
		app.println("Invalid Reset Token")
	default:
		app.printf("Password reset failed: %v\n", err)
	}
	return nil
}

// otpPrompter reads code guesses from the terminal
type otpPrompter struct {
	app *Application
}

func (p *otpPrompter) Prompt(attempt, maxAttempts int) (string, error) {
	return p.app.readLine(fmt.Sprintf("Enter OTP (Attempt %d/%d): ", attempt, maxAttempts))
}

func (p *otpPrompter) Reject(reason service.Rejection) {
	if reason == service.RejectMalformed {
		p.app.println("Invalid OTP format!")
		return
	}
	p.app.println("Invalid OTP!")
}
