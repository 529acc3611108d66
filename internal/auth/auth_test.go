package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs.Logf("auth/static-token: stored=%q input=%q", tc.stored, tc.input)
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)

	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestFromRequest(t *testing.T) {
	testlog.Start(t)

	r := httptest.NewRequest("GET", "/block?token=q", nil)
	if got := FromRequest(r); got != "q" {
		t.Fatalf("query token: got %q", got)
	}
	r.Header = Header("h")
	if got := FromRequest(r); got != "h" {
		t.Fatalf("header token should win: got %q", got)
	}
	if got := FromRequest(nil); got != "" {
		t.Fatalf("nil request: got %q", got)
	}
	if len(Header(" ")) != 0 {
		t.Fatalf("blank token must not set a header")
	}
}
