package session

import "testing"

func TestSessionLifecycle(t *testing.T) {
	s := New("tok-123", "operator")

	token, err := s.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q", token)
	}
	if s.User() != "operator" {
		t.Errorf("user = %q", s.User())
	}
	if s.CreatedAt().IsZero() {
		t.Error("created at not set")
	}

	s.Close()
	if _, err := s.Token(); err != ErrClosed {
		t.Errorf("Token() after close = %v, want ErrClosed", err)
	}
	// Identity survives logout for logging.
	if s.User() != "operator" {
		t.Errorf("user after close = %q", s.User())
	}
}
