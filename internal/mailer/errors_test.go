package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "connection reset" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

var _ net.Error = (*fakeNetError)(nil)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "transient mailer error", err: &MailerError{StatusCode: 503, Transient: true}, want: true},
		{name: "permanent mailer error", err: &MailerError{StatusCode: 400}, want: false},
		{name: "wrapped transient mailer error", err: fmt.Errorf("send: %w", &MailerError{Transient: true}), want: true},
		{name: "net timeout", err: &fakeNetError{timeout: true}, want: true},
		{name: "net failure without timeout", err: &fakeNetError{}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
