package writer

import (
	"encoding/base64"
	"testing"
)

func TestDecodeDataURI(t *testing.T) {
	t.Parallel()

	payload := []byte("hello media")
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	data, ext, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI: %v", err)
	}

	if ext != ".png" || string(data) != string(payload) {
		t.Errorf("got ext %q, data %q", ext, data)
	}
}

func TestDecodeDataURIErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		uri  string
	}{
		{"not a data uri", "https://example.com/x.png"},
		{"no payload", "data:image/png;base64"},
		{"unsupported encoding", "data:image/png;hex,ffff"},
		{"unknown mime", "data:application/zip;base64,AAAA"},
		{"bad base64", "data:image/png;base64,!!!!"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if _, _, err := DecodeDataURI(testCase.uri); err == nil {
				t.Errorf("expected error for %q", testCase.uri)
			}
		})
	}
}
