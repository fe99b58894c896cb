package phone

import "testing"

func TestNormalize(t *testing.T) {
	ok := map[string]string{
		"+1 (415) 555-2671":  "14155552671",
		"0044 20 7946 0958":  "442079460958",
		"254.712.345.678":    "254712345678",
		"  +91 98765 43210 ": "919876543210",
	}
	for in, want := range ok {
		got, err := Normalize(in)
		if err != nil || got != want {
			t.Fatalf("Normalize(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	bad := []string{"", "   ", "12345", "+1 415 CALL NOW", "0712345678", "1234567890123456"}
	for _, in := range bad {
		if got, err := Normalize(in); err != ErrInvalid {
			t.Fatalf("Normalize(%q) = %q, %v; want ErrInvalid", in, got, err)
		}
	}
}
