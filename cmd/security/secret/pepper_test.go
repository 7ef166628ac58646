package secret

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		min  int
		want error
	}{
		{name: "blank", raw: "   ", min: 16, want: ErrPepperMissing},
		{name: "short", raw: "abc", min: 16, want: ErrPepperTooShort},
		{name: "ok", raw: "  0123456789abcdef  ", min: 16, want: nil},
		{name: "no minimum", raw: "x", min: 0, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.raw, tc.min)
			if err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if err == nil && string(p) != strings.TrimSpace(tc.raw) {
				t.Fatalf("unexpected pepper bytes")
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(PepperEnvKey, "a-long-enough-pepper-value")
	p, err := FromEnv(MinPepperBytes)
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if p.Empty() {
		t.Fatalf("expected pepper")
	}

	t.Setenv(PepperEnvKey, "")
	if _, err := FromEnv(MinPepperBytes); err != ErrPepperMissing {
		t.Fatalf("expected ErrPepperMissing, got %v", err)
	}
}

func TestPepper_NeverFormatted(t *testing.T) {
	p := Pepper("super-secret-pepper-bytes")

	for _, s := range []string{
		fmt.Sprint(p),
		fmt.Sprintf("%v %s %#v", p, p, p),
	} {
		if strings.Contains(s, "super-secret") {
			t.Fatalf("pepper leaked through fmt: %q", s)
		}
	}

	b, err := json.Marshal(struct{ P Pepper }{P: p})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if bytes.Contains(b, []byte("super-secret")) {
		t.Fatalf("pepper leaked through json: %s", b)
	}

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("cfg", "pepper", p)
	if strings.Contains(buf.String(), "super-secret") {
		t.Fatalf("pepper leaked through slog: %s", buf.String())
	}
}

func TestPepper_KeyDependsOnPepper(t *testing.T) {
	pw := []byte("correct horse battery staple")
	a := Pepper("pepper-a-0123456789").Key(pw)
	b := Pepper("pepper-b-0123456789").Key(pw)
	if bytes.Equal(a, b) {
		t.Fatalf("different peppers must yield different keys")
	}
	if !bytes.Equal(a, Pepper("pepper-a-0123456789").Key(pw)) {
		t.Fatalf("key must be deterministic")
	}
}
