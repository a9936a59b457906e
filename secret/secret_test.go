package secret

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

var errBadWriter = errors.New("bad writer")

type badwriter struct{}

func (bw badwriter) Write(b []byte) (int, error) {
	return 0, errBadWriter
}

type escapeTest struct {
	in  string
	out string
}

func TestEscapedWrite(t *testing.T) {
	t.Parallel()
	for _, test := range []escapeTest{
		{"a", "a"},
		{"a\x00a", "a\x00\x00a"},
		{"\x00\x00", "\x00\x00\x00\x00"},
		{"", ""},
	} {
		var buf bytes.Buffer
		x, err := EscapedWrite(&buf, []byte(test.in))
		if err != nil {
			t.Fatal("Error:", err)
		}
		if x != len(test.out) {
			t.Fatalf("length mismatch for %q: %d", test.in, x)
		}
		if buf.String() != test.out {
			t.Fatalf("mismatched output for %q: %q", test.in, buf.String())
		}
	}

	x, err := EscapedWrite(badwriter{}, []byte("moo"))
	if x != 0 || err != errBadWriter {
		t.Fatal("EscapedWrite fails to handle writer errors")
	}
	x, err = EscapedWrite(badwriter{}, []byte("m\x00oo"))
	if x != 0 || err != errBadWriter {
		t.Fatal("EscapedWrite fails to handle writer errors")
	}
}

func TestSecretErrorCases(t *testing.T) {
	t.Parallel()

	sEmpty := New([]byte(""))
	if _, err := sEmpty.Authenticate([]byte("moo")); err != ErrNoSecretKey {
		t.Fatal("can authenticate without a key")
	}
	if _, err := sEmpty.UnwrapAuthentication([]byte("moo")); err != ErrNoSecretKey {
		t.Fatal("can unwrap auth without a key")
	}

	var sNil *Secret
	if _, err := sNil.Authenticate([]byte("moo")); err != ErrNoSecretKey {
		t.Fatal("can authenticate with a nil *Secret")
	}
	if _, err := sNil.UnwrapAuthentication([]byte("moo")); err != ErrNoSecretKey {
		t.Fatal("can unwrap auth with a nil *Secret")
	}

	s := New([]byte("secret"))
	if _, err := s.UnwrapAuthentication([]byte("moo")); err != ErrNotAuthenticated {
		t.Fatal("Can authenticate something with no sig")
	}
	if _, err := s.Authenticate(); err == nil {
		t.Fatal("can authenticate nothing at all")
	}

	// right length, suffix replaced
	signed, _ := s.Authenticate([]byte("value"))
	tampered := bytes.Replace(signed, SignSuffix, []byte("__!xauthed!_"), 1)
	if _, err := s.UnwrapAuthentication(tampered); err != ErrNotAuthenticated {
		t.Fatal("a mangled suffix still authenticates")
	}
}

func TestSecrets(t *testing.T) {
	t.Parallel()

	tests := [][][]byte{
		{[]byte("ab\x00")},
		{[]byte("a")},
		{[]byte("ab\x00cd")},
		{[]byte("\x00abcd")},
		{[]byte("\x00")},
		{[]byte("abc"), []byte("def")},
		{[]byte("ab\x00"), []byte("\x00\x00")},
		{[]byte("abc"), []byte("")},
	}
	s := New([]byte("secret"))
	wrong := New([]byte("totally public"))

	for _, testByteSlice := range tests {
		authedBytes, err := s.Authenticate(testByteSlice...)
		if err != nil {
			t.Fatal("Error authenticating bytes:", testByteSlice)
		}

		var newSlice [][]byte
		newSlice = append(newSlice, testByteSlice[:len(testByteSlice)-1]...)
		newSlice = append(newSlice, authedBytes)

		checked, err := s.UnwrapAuthentication(newSlice...)
		if err != nil {
			t.Fatal("Error unauthenticating bytes:", testByteSlice)
		}
		if string(checked) != string(testByteSlice[len(testByteSlice)-1]) {
			t.Fatal("Authed bytes did not come back cleanly:",
				string(checked),
				string(testByteSlice[len(testByteSlice)-1]))
		}

		if _, err = wrong.UnwrapAuthentication(newSlice...); err == nil {
			t.Fatal("The wrong secret was able to unwrap the auth!")
		}
	}

	authedLeft, _ := s.Authenticate(
		[]byte("A\x00\x01"), []byte("B"), []byte("C"))
	authedRight, _ := s.Authenticate(
		[]byte("A"), []byte("\x00\x01B"), []byte("C"))
	if reflect.DeepEqual(authedLeft, authedRight) {
		t.Fatal("authentication does not protect correctly against delimiters")
	}
}

func TestKeyLoading(t *testing.T) {
	s := New([]byte("secret"))

	s2 := Secret{}
	text, _ := s.MarshalText()
	_ = s2.UnmarshalText(text)
	if !reflect.DeepEqual(s, &s2) {
		t.Fatal("MarshalText -> UnmarshalText not identity")
	}

	s3 := Secret{}
	if err := s3.UnmarshalText([]byte("X")); err == nil {
		t.Fatal("Can unmarshal things not hex-encoded")
	}

	fromHex, err := FromHex(string(text))
	if err != nil || !reflect.DeepEqual(s, fromHex) {
		t.Fatal("FromHex doesn't agree with MarshalText")
	}
	if _, err := FromHex(""); err != ErrNoSecretKey {
		t.Fatal("empty hex key accepted")
	}
	if _, err := FromHex("zz"); err == nil {
		t.Fatal("non-hex key accepted")
	}

	r, err := Random(bytes.NewReader(bytes.Repeat([]byte{7}, 32)))
	if err != nil || r.IsZero() {
		t.Fatal("couldn't make a random secret")
	}
	if _, err := Random(bytes.NewReader([]byte("short"))); err == nil {
		t.Fatal("short random reader accepted")
	}
	if !(&Secret{}).IsZero() {
		t.Fatal("empty secret isn't zero")
	}
}
