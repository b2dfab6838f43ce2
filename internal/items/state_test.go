package items

import (
	"testing"
	"time"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "45", want: 45},
		{in: " 45 ", want: 45},
		{in: "45.9", want: 45},
		{in: "80 %", want: 80},
		{in: "-3", want: -3},
		{in: "0", want: 0},
		{in: "NULL", wantErr: true},
		{in: "UNDEF", wantErr: true},
		{in: "", wantErr: true},
		{in: "-", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseInt(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseInt(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseInt(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDateTime(t *testing.T) {
	want := time.Date(2024, 6, 1, 4, 12, 0, 0, time.UTC)

	for _, in := range []string{
		"2024-06-01T06:12:00.000+0200",
		"2024-06-01T06:12:00+02:00",
		"2024-06-01T06:12:00.000+02:00[Europe/Berlin]",
		"2024-06-01T04:12:00Z",
	} {
		got, err := ParseDateTime(in)
		if err != nil {
			t.Errorf("ParseDateTime(%q) unexpected error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDateTime(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseDateTime("NULL"); err == nil {
		t.Error("ParseDateTime(NULL) should fail")
	}
}
