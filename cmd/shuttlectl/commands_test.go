package main

import (
	"errors"
	"strings"
	"testing"

	"campus_shuttle/internal/tracker"
)

func TestRunArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown command", args: []string{"--backend", "memory", "fly"}, want: "unknown command"},
		{name: "unknown backend", args: []string{"--backend", "carrier-pigeon", "watch"}, want: "unknown backend"},
		{name: "unknown role", args: []string{"--backend", "memory", "signup", "admin"}, want: "unknown role"},
		{name: "refresh offline", args: []string{"--backend", "memory", "refresh"}, want: "remote backend"},
		{name: "bad ride command", args: []string{"--backend", "memory", "ride", "park"}, want: "unknown ride command"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := run(tc.args)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("run(%v) = %v, want error containing %q", tc.args, err, tc.want)
			}
		})
	}
}

func TestCommandsNeedSignIn(t *testing.T) {
	for _, args := range [][]string{
		{"--backend", "memory", "ride", "start", "1001"},
		{"--backend", "memory", "shift", "on"},
	} {
		if err := run(args); !errors.Is(err, tracker.ErrNotSignedIn) {
			t.Errorf("run(%v) = %v, want ErrNotSignedIn", args, err)
		}
	}
}

func TestSignupValidationIsLocal(t *testing.T) {
	err := run([]string{"--backend", "memory", "signup", "student",
		"--email", "a@gmail.com", "--password", "secret1", "--name", "A", "--phone", "1"})
	if !tracker.IsValidation(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestMarkersOffline(t *testing.T) {
	if err := run([]string{"--backend", "memory", "--demo", "markers"}); err != nil {
		t.Fatalf("markers: %v", err)
	}
}
