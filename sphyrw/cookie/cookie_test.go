package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"
	"github.com/thejerf/abtime"
	"github.com/satori-http/satori/secret"
)

type successfulTest struct {
	name   string
	value  string
	opts   []Option
	result string
}

func init() {
	// Friday, 14-Jul-17 02:40:00 UTC
	clock = abtime.NewManualAtTime(time.Unix(1500000000, 0).UTC())
}

func TestSuccessfulRendering(t *testing.T) {
	authenticator := secret.New([]byte("badsecret"))
	signed, _ := authenticator.Authenticate([]byte("c"), []byte("v"))
	sv := "c=" + string(signed)

	tests := []successfulTest{
		{"c", "v", nil, sv + "; Path=/; HttpOnly; Secure; SameSite=Strict"},
		{"c", "v", []Option{Delete},
			"c=; Max-Age=0; Expires=Thu, 01 Jan 1970 00:00:01 GMT; Path=/; HttpOnly; Secure; SameSite=Strict"},
		// ensure order works
		{"c", "v", []Option{Duration(time.Hour), Session},
			sv + "; Path=/; HttpOnly; Secure; SameSite=Strict"},
		{"c", "v", []Option{Forever, Session},
			sv + "; Path=/; HttpOnly; Secure; SameSite=Strict"},
		{"c", "v", []Option{Duration(time.Hour)},
			sv + "; Max-Age=3600; Expires=Fri, 14 Jul 2017 03:40:00 GMT; Path=/; HttpOnly; Secure; SameSite=Strict"},
		{"c", "v", []Option{Path("/moo/")}, sv + "; Path=/moo/; HttpOnly; Secure; SameSite=Strict"},
		{"c", "v", []Option{Domain("fo-o2.com")}, sv + "; Path=/; Domain=fo-o2.com; HttpOnly; Secure; SameSite=Strict"},
		{"c", "v", []Option{Domain(".foo.com")}, sv + "; Path=/; Domain=.foo.com; HttpOnly; Secure; SameSite=Strict"},
		{"c", "v", []Option{ClientCanRead, SameSite(Lax)}, sv + "; Path=/; Secure; SameSite=Lax"},
		{"c", "v", []Option{Insecure, SameSite(NoSameSiteSetting)}, sv + "; Path=/; HttpOnly"},
		{"c", "v", []Option{SameSite(None)}, sv + "; Path=/; HttpOnly; Secure; SameSite=None"},
	}

	for _, test := range tests {
		cookie, err := NewOut(test.name, test.value, authenticator, test.opts...)
		if err != nil {
			t.Fatal("Failed to generate cookie '", test.result, "'")
		}
		rendered, err := cookie.Render()
		if err != nil {
			t.Fatal("Failed to render cookie '", test.result, "' with", err)
		}
		if test.result != rendered {
			t.Fatalf("Failed to render cookie. Expected\n'%s', got\n'%s'", test.result, rendered)
		}

		// what we render, net/http must be able to read back
		header := http.Header{}
		header.Add("Set-Cookie", rendered)
		parsed := (&http.Response{Header: header}).Cookies()
		if len(parsed) != 1 || parsed[0].Name != "c" {
			spew.Dump(parsed)
			t.Fatal("net/http can't parse", rendered)
		}
	}
}

func TestDeletedCookieIsInThePast(t *testing.T) {
	c, err := NewOut("session", "abc", nil, Path("/app"), Domain("example.com"), Delete)
	if err != nil {
		t.Fatal(err)
	}
	expires, has := c.Expires()
	if !has || !expires.Before(clock.Now()) {
		t.Fatal("deleted cookie doesn't expire in the past:", expires)
	}

	rendered, _ := c.Render()
	header := http.Header{}
	header.Add("Set-Cookie", rendered)
	parsed := (&http.Response{Header: header}).Cookies()[0]
	if parsed.Value != "" || parsed.Path != "/app" || parsed.Domain != "example.com" ||
		!parsed.HttpOnly || !parsed.Secure || !parsed.Expires.Before(time.Now()) {
		t.Fatalf("deleted cookie lost its scope: %#v", parsed)
	}
}

func TestBadAuthenticatorRendering(t *testing.T) {
	c, _ := NewOut("cookie", "value", BadAuthenticator{})
	if _, err := c.Render(); err == nil {
		t.Fatal("Can sign cookies even when authenticator fails?")
	}

	// deletion never needs the signature
	c, _ = NewOut("cookie", "value", BadAuthenticator{}, Delete)
	if _, err := c.Render(); err != nil {
		t.Fatal("deleting a cookie needs its authenticator:", err)
	}
}

func TestNonstandardOut(t *testing.T) {
	c, _ := NewNonstandardOut("cookie", "value is,", nil)
	val, _ := c.Render()
	if val != `cookie="value is,"; Path=/; HttpOnly; Secure; SameSite=Strict` {
		t.Fatal("nonstandard cookie didn't work", val)
	}
	if _, err := NewNonstandardOut("cookie", "value;", nil); err == nil {
		t.Fatal("Permitted to make illegal values in nonstandard cookie")
	}
}

type testIllegal struct {
	name  string
	value string
	opts  []Option
}

func TestIllegalCookies(t *testing.T) {
	tests := []testIllegal{
		{" space", "v", nil},
		{"\ttab", "v", nil},
		{"n", " strict mode space", nil},
		{"", "", nil},
		{"", "\tmoo", nil},
		{"n=", "v", nil},
		{"n", "v", []Option{Duration(time.Duration(-2))}},
		{"n", "v", []Option{Duration(time.Millisecond)}},
		{"n", "v", []Option{Duration(time.Hour * 24 * 365 * 24)}},
		{"c", "\x10", nil},
		{"c", "v", []Option{Path("/bad;path/")}},

		// lots of ways for domain to be illegal, aren't there?
		{"c", "v", []Option{Domain("")}},
		{"c", "v", []Option{Domain(strings.Repeat("a", 256))}},
		{"c", "v", []Option{Domain("foo-.com")}},
		{"c", "v", []Option{Domain("foo..com")}},
		{"c", "v", []Option{Domain("foo.-com")}},
		{"c", "v", []Option{Domain("foo.com-")}},
		{"c", "v", []Option{Domain(strings.Repeat("a", 64) + ".com")}},
		{"c", "v", []Option{Domain("foo\t.com")}},
	}

	for idx, test := range tests {
		if _, err := NewOut(test.name, test.value, nil, test.opts...); err == nil {
			t.Fatal("Failed on illegal cookie", idx)
		}
	}
}

func TestParseStrictness(t *testing.T) {
	for in, expected := range map[string]Strictness{
		"strict": Strict,
		"Lax":    Lax,
		"none":   None,
		"":       NoSameSiteSetting,
	} {
		got, err := ParseStrictness(in)
		if err != nil || got != expected {
			t.Fatalf("ParseStrictness(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseStrictness("sometimes"); err == nil {
		t.Fatal("nonsense SameSite accepted")
	}
}

type parseCookieTest struct {
	cookies  []string
	expected *InCookies
}

func cookies(in ...*InCookie) *InCookies {
	inCookies := &InCookies{}
	for _, cookie := range in {
		inCookies.add(cookie.name, cookie.value)
	}
	return inCookies
}

func TestParseCookies(t *testing.T) {
	if x := ParseCookies(nil); x == nil || x.Count() > 0 {
		t.Fatal("unexpected squeezed blood from a stone")
	}

	for _, test := range []parseCookieTest{
		{
			[]string{"session=1"},
			cookies(&InCookie{"session", "1"}),
		},
		{
			[]string{";session=1;", "", ";", ";;"},
			cookies(&InCookie{"session", "1"}),
		},
		{
			[]string{"session=1", "\x00=cow;x=\"y\"", "z=\x00"},
			cookies(&InCookie{"session", "1"}, &InCookie{"x", "y"}),
		},
		{
			[]string{"session=21", "session=26; session=25"},
			cookies(&InCookie{"session", "21"}),
		},
		{
			[]string{"a=b=c; empty="},
			cookies(&InCookie{"a", "b=c"}, &InCookie{"empty", ""}),
		},
	} {
		parsed := ParseCookies(test.cookies)
		if diff := deep.Equal(parsed.Map(), test.expected.Map()); diff != nil {
			t.Fatal(fmt.Sprintf("Failed to correctly parse cookie %q: %v", test.cookies, diff))
		}
	}
}

func TestGettingFromInCookies(t *testing.T) {
	inCookies := cookies(
		&InCookie{"session", "1"},
		&InCookie{"other", "2"},
	)

	if inCookies.Get("moo") != nil {
		t.Fatal("Can spontaneously produce cookies")
	}
	if inCookies.Get("session").Value() != "1" {
		t.Fatal("Can't fetch cookies with .Get")
	}
	if diff := deep.Equal(inCookies.Names(), []string{"other", "session"}); diff != nil {
		t.Fatal(diff)
	}
	if diff := deep.Equal(inCookies.Map(), map[string]string{"other": "2", "session": "1"}); diff != nil {
		t.Fatal(diff)
	}

	var nilCookies *InCookies
	if nilCookies.Get("x") != nil || nilCookies.Count() != 0 || len(nilCookies.Map()) != 0 {
		t.Fatal("nil InCookies misbehaves")
	}
}

func TestGoString(t *testing.T) {
	ics := cookies(&InCookie{"c", "d"}, &InCookie{"a", "b"})
	if ics.GoString() != "[InCookies: {a=b, c=d}]" {
		t.Fatal("InCookies GoString failing:", ics.GoString())
	}
	if (&errCookieInvalid{"cookie", "reason"}).Error() == "" {
		t.Fatal("empty error string")
	}
}

type BadAuthenticator struct{}

func (ba BadAuthenticator) Authenticate(...[]byte) ([]byte, error) {
	return nil, errors.New("I am too feeble to authenticate!")
}

func ExampleNewOut() {
	cookie, _ := NewOut(
		"this_cookie_is_so_emo",
		"true",
		nil,
		Forever, Insecure,
		Domain("despair.com"),
	)

	val, _ := cookie.Render()
	fmt.Println(val)

	// Output: this_cookie_is_so_emo=true; Expires=Tue, 19 Jan 2038 03:14:07 GMT; Path=/; Domain=despair.com; HttpOnly; SameSite=Strict
}
