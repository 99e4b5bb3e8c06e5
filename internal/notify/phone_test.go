package notify

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"09901678665", "919901678665", false},
		{"9901678665", "919901678665", false},
		{"919901678665", "919901678665", false},
		{"+91 99016 78665", "919901678665", false},
		{"0919901678665", "919901678665", false},
		{"12345", "", true},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizePhone(tt.in, "91")
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizePhone(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizePhone(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
