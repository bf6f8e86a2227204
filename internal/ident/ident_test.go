package ident

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeContact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"canonical passes through", "5511999990000", "5511999990000"},
		{"local gets prefix", "11999990000", "5511999990000"},
		{"punctuation stripped", "+55 (11) 99999-0000", "5511999990000"},
		{"jid suffix stripped", "5511999990000@s.whatsapp.net", "5511999990000"},
		{"excess digits trimmed to canonical tail", "005511999990000", "5511999990000"},
		{"canonical length wrong prefix kept", "1511999990000", "1511999990000"},
		{"short kept as-is", "99990000", "99990000"},
		{"empty kept", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeContact(tt.in); got != tt.want {
				t.Errorf("NormalizeContact(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeContactIdempotent(t *testing.T) {
	inputs := []string{"5511999990000", "11999990000", "+55 11 99999-0000", "12345"}
	for _, in := range inputs {
		once := NormalizeContact(in)
		if twice := NormalizeContact(once); twice != once {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 14, 16, 23, 8, 0, time.UTC).Unix()

	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"unix seconds", "1741969388", want},
		{"iso with zulu", "2025-03-14T16:23:08Z", want},
		{"iso with fraction", "2025-03-14T16:23:08.114592Z", want},
		{"iso naive assumes utc", "2025-03-14T16:23:08", want},
		{"iso with offset", "2025-03-14T13:23:08-03:00", want},
		{"compact positional", "20250314162308", want},
		{"compact with microseconds", "20250314162308114592", want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseTimestamp(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTimestampMalformed(t *testing.T) {
	inputs := []string{"", "not-a-time", "2025-13-40T99:99:99Z", "99999999999999999999x", "123abc"}
	for _, in := range inputs {
		if _, err := ParseTimestamp(in); !errors.Is(err, ErrMalformedTimestamp) {
			t.Errorf("ParseTimestamp(%q) err = %v, want ErrMalformedTimestamp", in, err)
		}
	}
}

func TestPointerRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 14, 16, 23, 8, 114592000, time.UTC)
	p := FreshPointer(now)
	if p != "2025-03-14T16:23:08.114592Z" {
		t.Fatalf("FreshPointer = %q", p)
	}
	secs, err := ParseTimestamp(p)
	if err != nil {
		t.Fatalf("ParseTimestamp(pointer): %v", err)
	}
	if secs != now.Unix() {
		t.Errorf("round trip = %d, want %d", secs, now.Unix())
	}
}

func TestCurrentSessionBucket(t *testing.T) {
	now := time.Date(2025, 3, 14, 16, 59, 59, 999999000, time.UTC)
	if got := CurrentSessionBucket(now); got != "2025-03-14T16:00:00Z" {
		t.Errorf("CurrentSessionBucket = %q", got)
	}
	if got := BucketBefore("2025-03-14T16:00:00Z"); got != "2025-03-14T15:00:00Z" {
		t.Errorf("BucketBefore = %q", got)
	}
	if got := BucketBefore("2025-03-15T00:00:00Z"); got != "2025-03-14T23:00:00Z" {
		t.Errorf("BucketBefore across midnight = %q", got)
	}
}

func TestMemoryPointer(t *testing.T) {
	stamp := "2025-03-14T16:23:08.114592Z"
	p := MemoryPointer("5511999990000", stamp)
	if p != "5511999990000_mem_"+stamp {
		t.Fatalf("MemoryPointer = %q", p)
	}
	contact, gotStamp, err := SplitMemoryPointer(p)
	if err != nil {
		t.Fatalf("SplitMemoryPointer: %v", err)
	}
	if contact != "5511999990000" || gotStamp != stamp {
		t.Errorf("SplitMemoryPointer = %q, %q", contact, gotStamp)
	}
	if _, _, err := SplitMemoryPointer("no-separator"); err == nil {
		t.Error("SplitMemoryPointer accepted value without separator")
	}
}

func TestNormalizeToISO(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"20250314162308114592", "2025-03-14T16:23:08.114592Z"},
		{"20250314162308", "2025-03-14T16:23:08.000000Z"},
		{"2025-03-14T16:23:08.114592Z", "2025-03-14T16:23:08.114592Z"},
		{"garbage", "garbage"},
	}
	for _, tt := range tests {
		if got := NormalizeToISO(tt.in); got != tt.want {
			t.Errorf("NormalizeToISO(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPointerAge(t *testing.T) {
	now := time.Date(2025, 3, 14, 17, 23, 8, 0, time.UTC)
	age, err := PointerAge("2025-03-14T16:23:08.000000Z", now)
	if err != nil {
		t.Fatalf("PointerAge: %v", err)
	}
	if age != time.Hour {
		t.Errorf("age = %v, want 1h", age)
	}
	if _, err := PointerAge("bogus", now); !errors.Is(err, ErrMalformedTimestamp) {
		t.Errorf("err = %v, want ErrMalformedTimestamp", err)
	}
}
