package codec

import (
	"bytes"
	"strings"
	"testing"

	"cipherpaste/pkg/domain"
)

func TestQuote_MatchesJSONStringify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", `"plain"`},
		// JSON.stringify("a b<>&\b\f\x01\"\\é")
		{"a b<>&\b\f\x01\"\\é", `"a b<>&\b\f\u0001\"\\é"`},
		{"\n\r\t", `"\n\r\t"`},
		{"\x1f\x7f", "\"\\u001f\x7f\""},
		{"\u2028\u2029", "\"\u2028\u2029\""},
		{"bad\xffbyte", "\"bad\ufffdbyte\""},
	}
	for _, tc := range cases {
		var b strings.Builder
		quote(&b, tc.in)
		if b.String() != tc.want {
			t.Errorf("quote(%q) = %s, want %s", tc.in, b.String(), tc.want)
		}
	}
}

func TestCanonical_FieldOrder(t *testing.T) {
	p := &domain.Paste{
		Content:   "aGVsbG8=",
		CreatedAt: "2025-01-01T00:00:00.000Z",
		ExpiresAt: domain.NeverExpires,
		IsPublic:  true,
		Syntax:    "plaintext",
		Signature: "sig",
	}
	want := `{"content":"aGVsbG8=","createdAt":"2025-01-01T00:00:00.000Z","expiresAt":"9999-12-31T23:59:59Z","isPublic":true,"syntax":"plaintext"}`
	if got := canonical(p, false); got != want {
		t.Errorf("unsigned form:\n got %s\nwant %s", got, want)
	}
	if got := canonical(p, true); got != strings.TrimSuffix(want, "}")+`,"signature":"sig"}` {
		t.Errorf("signed form: %s", got)
	}
}

func TestPKCS7(t *testing.T) {
	for n := 0; n < 40; n++ {
		in := bytes.Repeat([]byte{'q'}, n)
		padded := pkcs7Pad(in, 16)
		if len(padded)%16 != 0 || len(padded) <= n {
			t.Fatalf("pad(%d) produced %d bytes", n, len(padded))
		}
		out, err := pkcs7Unpad(padded, 16)
		if err != nil {
			t.Fatalf("unpad(%d): %v", n, err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("unpad(%d) mismatch", n)
		}
	}
	bad := [][]byte{
		nil,
		make([]byte, 15),
		append(bytes.Repeat([]byte{1}, 15), 0),
		append(bytes.Repeat([]byte{1}, 15), 17),
		append(bytes.Repeat([]byte{1}, 14), 3, 2),
	}
	for i, b := range bad {
		if _, err := pkcs7Unpad(b, 16); err == nil {
			t.Errorf("case %d: expected padding error", i)
		}
	}
}

func TestCBCOpen_Short(t *testing.T) {
	key := make([]byte, keySize)
	if _, err := cbcOpen(make([]byte, 16), key); err != errShortCiphertext {
		t.Errorf("expected errShortCiphertext, got %v", err)
	}
	if _, err := cbcOpen(make([]byte, 40), key); err != errBlockAlignment {
		t.Errorf("expected errBlockAlignment, got %v", err)
	}
}
