package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/amirk1998/serendib-banking/internal/logging"
	"github.com/amirk1998/serendib-banking/internal/models"
	"github.com/amirk1998/serendib-banking/internal/ratelimit"
	"github.com/amirk1998/serendib-banking/pkg/errors"
)

func TestIssueThenValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.otp.Issue(ctx, "200012345678", models.Channels(models.ChannelMobile)); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	code := f.delivery.last(t).code

	for i := 0; i < 3; i++ {
		if !f.otp.Validate(ctx, "200012345678", code) {
			t.Fatalf("check %d: issued code rejected", i+1)
		}
	}
	if f.otp.Validate(ctx, "200012345678", wrongCode(code)) {
		t.Fatalf("wrong code accepted")
	}
	if f.otp.IsExpired(ctx, "200012345678") {
		t.Fatalf("fresh code reported expired")
	}
}

func TestValidateUnknownKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if f.otp.Validate(ctx, "nobody", "123456") {
		t.Fatalf("code accepted for a key with no issued code")
	}
	if !f.otp.IsExpired(ctx, "nobody") {
		t.Fatalf("key with no issued code should read as expired")
	}
}

func TestIsExpiredBoundary(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{name: "just issued", elapsed: 0, want: false},
		{name: "one tick before expiry", elapsed: 30*time.Second - time.Nanosecond, want: false},
		{name: "at expiry", elapsed: 30 * time.Second, want: true},
		{name: "after expiry", elapsed: 30*time.Second + time.Nanosecond, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			if err := f.otp.Issue(ctx, "alice", models.Channels(models.ChannelMobile)); err != nil {
				t.Fatalf("Issue: %v", err)
			}
			f.clock.Advance(tc.elapsed)

			if got := f.otp.IsExpired(ctx, "alice"); got != tc.want {
				t.Fatalf("IsExpired after %v = %v, want %v", tc.elapsed, got, tc.want)
			}
		})
	}
}

func TestReissueReplacesPreviousCode(t *testing.T) {
	f := newFixture(t)
	f.otp = NewOTPService(Deps{
		Store:    f.store,
		Delivery: f.delivery,
		Clock:    f.clock,
		Random:   &sequence{values: []int{111111, 222222}},
		Logger:   logging.Discard(),
	})
	ctx := context.Background()

	if err := f.otp.Issue(ctx, "bob", models.Channels(models.ChannelEmail)); err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	f.clock.Advance(20 * time.Second)
	if err := f.otp.Issue(ctx, "bob", models.Channels(models.ChannelEmail)); err != nil {
		t.Fatalf("second Issue: %v", err)
	}

	if f.otp.Validate(ctx, "bob", "111111") {
		t.Fatalf("replaced code still accepted")
	}
	if !f.otp.Validate(ctx, "bob", "222222") {
		t.Fatalf("latest code rejected")
	}

	// The second code's window starts at its own issue time.
	f.clock.Advance(25 * time.Second)
	if f.otp.IsExpired(ctx, "bob") {
		t.Fatalf("reissued code expired on the first code's schedule")
	}
}

func TestIssueSessionKeysAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.otp.Issue(ctx, "first", models.Channels(models.ChannelMobile)); err != nil {
		t.Fatalf("Issue(first): %v", err)
	}
	f.clock.Advance(20 * time.Second)
	if err := f.otp.Issue(ctx, "second", models.Channels(models.ChannelMobile)); err != nil {
		t.Fatalf("Issue(second): %v", err)
	}
	f.clock.Advance(15 * time.Second)

	if !f.otp.IsExpired(ctx, "first") {
		t.Fatalf("first code outlived its window")
	}
	if f.otp.IsExpired(ctx, "second") {
		t.Fatalf("second code expired with the first")
	}
	if !f.otp.Validate(ctx, "second", f.delivery.codeFor(t, "second")) {
		t.Fatalf("second code rejected")
	}
}

func TestIssueConcurrentSessionKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const sessions = 50
	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- f.otp.Issue(ctx, fmt.Sprintf("session-%d", i), models.Channels(models.ChannelMobile))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
	}
	for i := 0; i < sessions; i++ {
		key := fmt.Sprintf("session-%d", i)
		if !f.otp.Validate(ctx, key, f.delivery.codeFor(t, key)) {
			t.Fatalf("%s: delivered code rejected", key)
		}
	}
}

func TestIssueChannelResolution(t *testing.T) {
	cases := []struct {
		name      string
		preferred models.Channel
		requested models.ChannelSet
		want      models.ChannelSet
	}{
		{name: "single follows preference", preferred: models.ChannelEmail, requested: models.Channels(models.ChannelMobile), want: models.ChannelSet{models.ChannelEmail}},
		{name: "dual led by preference", preferred: models.ChannelEmail, requested: models.Dual(models.ChannelMobile), want: models.ChannelSet{models.ChannelEmail, models.ChannelMobile}},
		{name: "no preference keeps request", preferred: "", requested: models.Channels(models.ChannelEmail), want: models.ChannelSet{models.ChannelEmail}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.addUser(t, "carol", "Passw0rd1", tc.preferred)

			if err := f.otp.Issue(context.Background(), "carol", tc.requested); err != nil {
				t.Fatalf("Issue: %v", err)
			}

			var got models.ChannelSet
			for _, call := range f.delivery.calls {
				got = append(got, call.channel)
				if call.code != f.delivery.calls[0].code {
					t.Fatalf("legs carried different codes: %v", f.delivery.calls)
				}
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("delivered on %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIssueWithoutChannels(t *testing.T) {
	f := newFixture(t)

	err := f.otp.Issue(context.Background(), "dave", models.Channels(models.Channel("pigeon")))
	if !stderrors.Is(err, errors.ErrNoChannel) {
		t.Fatalf("Issue with no valid channel = %v, want ErrNoChannel", err)
	}
	if len(f.delivery.calls) != 0 {
		t.Fatalf("delivered without a channel: %v", f.delivery.calls)
	}
}

func TestIssueDeliveryFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.delivery.err = stderrors.New("gateway down")
	ctx := context.Background()

	if err := f.otp.Issue(ctx, "erin", models.Dual(models.ChannelMobile)); err != nil {
		t.Fatalf("Issue returned delivery failure: %v", err)
	}
	if len(f.delivery.calls) != 2 {
		t.Fatalf("attempted %d legs, want 2", len(f.delivery.calls))
	}
	if !f.otp.Validate(ctx, "erin", f.delivery.last(t).code) {
		t.Fatalf("code not stored after failed delivery")
	}
}

func TestIssueRateLimited(t *testing.T) {
	f := newFixture(t)
	f.otp = NewOTPService(Deps{
		Store:    f.store,
		Delivery: f.delivery,
		Limiter:  ratelimit.NewRateLimiter(0.001, 2),
		Clock:    f.clock,
		Logger:   logging.Discard(),
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.otp.Issue(ctx, "frank", models.Channels(models.ChannelMobile)); err != nil {
			t.Fatalf("Issue %d: %v", i+1, err)
		}
	}
	if err := f.otp.Issue(ctx, "frank", models.Channels(models.ChannelMobile)); !stderrors.Is(err, errors.ErrRateLimitExceeded) {
		t.Fatalf("third Issue = %v, want ErrRateLimitExceeded", err)
	}
	if err := f.otp.Issue(ctx, "grace", models.Channels(models.ChannelMobile)); err != nil {
		t.Fatalf("other key throttled: %v", err)
	}
}

func TestOTPServiceFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.otp = NewOTPService(Deps{
		Store:    failingStore{},
		Delivery: f.delivery,
		Clock:    f.clock,
		Logger:   logging.Discard(),
	})
	ctx := context.Background()

	if err := f.otp.Issue(ctx, "henry", models.Channels(models.ChannelMobile)); !stderrors.Is(err, errBackend) {
		t.Fatalf("Issue = %v, want backend error", err)
	}
	if len(f.delivery.calls) != 0 {
		t.Fatalf("delivered a code that was never stored")
	}
	if f.otp.Validate(ctx, "henry", "123456") {
		t.Fatalf("Validate succeeded without a store")
	}
	if !f.otp.IsExpired(ctx, "henry") {
		t.Fatalf("IsExpired should report true without a store")
	}
}

func TestCodesAreSixDigits(t *testing.T) {
	if got := sixDigitCode(&sequence{values: []int{42}}); got != "000042" {
		t.Fatalf("sixDigitCode(42) = %q, want zero padded", got)
	}
	if got := sixDigitCode(&sequence{values: []int{999999}}); got != "999999" {
		t.Fatalf("sixDigitCode(999999) = %q", got)
	}

	six := regexp.MustCompile(`^\d{6}$`)
	rnd := NewSeededSource(42)
	for i := 0; i < 1000; i++ {
		if code := sixDigitCode(rnd); !six.MatchString(code) {
			t.Fatalf("draw %d: %q is not six digits", i, code)
		}
	}
}
