package email

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{}, f.err
}

func TestNewSESSenderRequiresFrom(t *testing.T) {
	if _, err := NewSESSender(aws.Config{Region: "eu-central-1"}, ""); !errors.Is(err, ErrNoSender) {
		t.Fatalf("expected ErrNoSender, got %v", err)
	}
}

func TestSendBuildsMessage(t *testing.T) {
	f := &fakeSES{}
	s := &SESSender{client: f, fromEmail: "reports@example.com"}
	if err := s.Send(context.Background(), "boss@example.com", "Daily report", "3 done"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(f.in.FromEmailAddress); got != "reports@example.com" {
		t.Fatalf("from = %q", got)
	}
	if got := f.in.Destination.ToAddresses; len(got) != 1 || got[0] != "boss@example.com" {
		t.Fatalf("to = %v", got)
	}
	if got := aws.ToString(f.in.Content.Simple.Body.Text.Data); got != "3 done" {
		t.Fatalf("body = %q", got)
	}
}

func TestSendWrapsError(t *testing.T) {
	boom := errors.New("throttled")
	s := &SESSender{client: &fakeSES{err: boom}, fromEmail: "r@example.com"}
	if err := s.Send(context.Background(), "x@example.com", "s", "b"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if err := s.Send(context.Background(), "", "s", "b"); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}
