package request

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/gobwas/httphead"
	"github.com/munnerz/goautoneg"
)

// HasAccept reports whether the Accept header admits the given
// "type/subtype". The most specific matching entry decides: an exact
// entry beats "type/*", which beats "*/*", so "text/html;q=0, */*"
// refuses text/html. A wildcard in mediaRange asks whether any type in
// that range is admitted.
func (r *Request) HasAccept(mediaRange string) bool {
	header, have := r.Accept()
	if !have {
		return false
	}

	wantType, wantSub, found := strings.Cut(mediaRange, "/")
	if !found {
		wantSub = "*"
	}

	wantsRange := wantType == "*" || wantSub == "*"

	best, bestQ := -1, 0.0
	for _, accept := range goautoneg.ParseAccept(header) {
		if !matchPart(accept.Type, wantType) || !matchPart(accept.SubType, wantSub) {
			continue
		}
		if wantsRange {
			if accept.Q > 0 {
				return true
			}
			continue
		}
		specificity := 0
		if accept.Type != "*" {
			specificity++
			if accept.SubType != "*" {
				specificity++
			}
		}
		best, bestQ = moreSpecific(best, bestQ, specificity, accept.Q)
	}
	return best >= 0 && bestQ > 0
}

func matchPart(have, want string) bool {
	return have == "*" || want == "*" || strings.EqualFold(have, want)
}

// moreSpecific folds one matching entry into the running best. Among
// equally specific entries the highest weight wins.
func moreSpecific(best int, bestQ float64, specificity int, q float64) (int, float64) {
	switch {
	case specificity > best:
		return specificity, q
	case specificity == best && q > bestQ:
		return best, q
	}
	return best, bestQ
}

// HasAcceptLanguage reports whether the Accept-Language header admits the
// given tag. Ranges match by prefix on "-" boundaries, so "en" admits
// "en-US"; the longest matching range decides, and "*" only covers tags
// nothing else matched.
func (r *Request) HasAcceptLanguage(tag string) bool {
	header, have := r.AcceptLanguage()
	return have && listsOption(header, func(languageRange []byte) int {
		switch {
		case len(languageRange) == len(tag) && bytes.EqualFold(languageRange, []byte(tag)):
			return len(languageRange)
		case len(languageRange) < len(tag) && tag[len(languageRange)] == '-' &&
			bytes.EqualFold(languageRange, []byte(tag[:len(languageRange)])):
			return len(languageRange)
		}
		return -1
	})
}

// HasAcceptEncoding reports whether Accept-Encoding admits the coding.
// An entry naming the coding decides on its own; "*" only covers codings
// the header doesn't name.
func (r *Request) HasAcceptEncoding(coding string) bool {
	header, have := r.AcceptEncoding()
	return have && listsOption(header, exactToken(coding))
}

// HasAcceptCharset is HasAcceptEncoding for Accept-Charset.
func (r *Request) HasAcceptCharset(charset string) bool {
	header, have := r.AcceptCharset()
	return have && listsOption(header, exactToken(charset))
}

// HasConnectionToken reports whether Connection lists the token, such as
// "close" or "upgrade".
func (r *Request) HasConnectionToken(token string) bool {
	header, have := r.Connection()
	if !have {
		return false
	}

	found := false
	httphead.ScanTokens([]byte(header), func(t []byte) bool {
		if bytes.EqualFold(t, []byte(token)) {
			found = true
			return false
		}
		return true
	})
	return found
}

func exactToken(want string) func([]byte) int {
	return func(name []byte) int {
		if bytes.EqualFold(name, []byte(want)) {
			return 1
		}
		return -1
	}
}

// listsOption scans a weighted list header. match gives the specificity
// of a named entry, or -1 if it doesn't apply; "*" always applies at the
// lowest specificity. Entries with an unparseable q are ignored.
func listsOption(header string, match func(name []byte) int) bool {
	options, ok := httphead.ParseOptions([]byte(header), nil)
	if !ok {
		return false
	}

	best, bestQ := -1, 0.0
	for _, option := range options {
		specificity := 0
		if !bytes.Equal(option.Name, []byte("*")) {
			if specificity = match(option.Name); specificity < 0 {
				continue
			}
			specificity++
		}

		weight := 1.0
		if q, have := option.Parameters.Get("q"); have {
			var err error
			if weight, err = strconv.ParseFloat(string(q), 64); err != nil {
				continue
			}
		}
		best, bestQ = moreSpecific(best, bestQ, specificity, weight)
	}
	return best >= 0 && bestQ > 0
}
