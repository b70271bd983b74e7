package pjlink

import "testing"

func TestAuthToken(t *testing.T) {
	// Worked example from the PJLink specification.
	got := AuthToken([]byte("498e4a67"), "JBMIAProjectorLink")
	want := "5d8409bc1c3fa39749434aa3a5c38682"
	if got != want {
		t.Errorf("AuthToken = %q, want %q", got, want)
	}
}

func TestAuthTokenProperties(t *testing.T) {
	base := AuthToken([]byte("12345678"), "secret")

	if len(base) != 32 {
		t.Errorf("token length = %d, want 32", len(base))
	}
	for _, r := range base {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("token %q contains non-lowercase-hex rune %q", base, r)
		}
	}

	if again := AuthToken([]byte("12345678"), "secret"); again != base {
		t.Error("token is not deterministic")
	}
	if other := AuthToken([]byte("12345679"), "secret"); other == base {
		t.Error("changing the challenge did not change the token")
	}
	if other := AuthToken([]byte("12345678"), "Secret"); other == base {
		t.Error("changing the password did not change the token")
	}
}

func TestResolveInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"hdmi1", "31", false},
		{"rgb2", "12", false},
		{"network1", "51", false},
		{"21", "21", false},
		{"59", "59", false},
		{"60", "", true},
		{"10", "", true},
		{"composite", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveInput(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ResolveInput(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ResolveInput(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
