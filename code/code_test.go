package code

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestRegistration(t *testing.T) {
	const message = "fun for the whole family"
	c := Register(-5000, message)
	if got := c.String(); got != message {
		t.Errorf("Register(-5000): got %q, want %q", got, message)
	} else if c != -5000 {
		t.Errorf("Register(-5000): got %d instead", c)
	}
}

func TestRegistrationError(t *testing.T) {
	defer func() {
		if v := recover(); v != nil {
			t.Logf("Register correctly panicked: %v", v)
		} else {
			t.Fatalf("Register should have panicked on input %d, but did not", DemandViolation)
		}
	}()
	Register(int32(DemandViolation), "bogus")
}

type testCoder Code

func (t testCoder) ErrCode() Code { return Code(t) }
func (testCoder) Error() string   { return "bogus" }

func TestFromError(t *testing.T) {
	tests := []struct {
		input error
		want  Code
	}{
		{nil, NoError},
		{testCoder(DemandViolation), DemandViolation},
		{testCoder(TransportError), TransportError},
		{fmt.Errorf("wrapped: %w", testCoder(FramingSizeExceeded)), FramingSizeExceeded},
		{context.Canceled, Cancelled},
		{fmt.Errorf("op: %w", context.DeadlineExceeded), DeadlineExceeded},
		{ConfigurationError.Err(), ConfigurationError},
		{errors.New("other"), SystemError},
		{io.EOF, SystemError},
	}
	for _, test := range tests {
		if got := FromError(test.input); got != test.want {
			t.Errorf("FromError(%v): got %v, want %v", test.input, got, test.want)
		}
	}
}

func TestErr(t *testing.T) {
	if err := NoError.Err(); err != nil {
		t.Errorf("NoError.Err(): got %v, want nil", err)
	}
	err := fmt.Errorf("lookup: %w", ConfigurationError.Err())
	if !errors.Is(err, ConfigurationError.Err()) {
		t.Errorf("errors.Is(%v, ConfigurationError) is false", err)
	}
	if errors.Is(err, TransportError.Err()) {
		t.Errorf("errors.Is(%v, TransportError) is true", err)
	}
}
