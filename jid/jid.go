// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import (
	"encoding/xml"
	"errors"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
)

// Forbidden contains the characters that may never appear in a localpart even
// though the PRECIS profile allows them (RFC 7622 §3.3.1).
const Forbidden = `"&'/:<>@`

// Errors returned when parsing or constructing addresses.
var (
	ErrEmptyDomain    = errors.New("jid: the domainpart must be between 1 and 1023 bytes")
	ErrEmptyLocal     = errors.New("jid: the localpart must be larger than 0 bytes")
	ErrEmptyResource  = errors.New("jid: the resourcepart must be larger than 0 bytes")
	ErrForbiddenChars = errors.New("jid: localpart contains forbidden characters")
	ErrInvalidUTF8    = errors.New("jid: address contains invalid UTF-8")
	ErrTooLong        = errors.New("jid: parts must be smaller than 1024 bytes")
	ErrNotUser        = errors.New("jid: localpart is not a numeric user id")
)

// JID is a prepared address.
// The zero value is the empty address which marshals to no attribute at all.
// JIDs are comparable with == and may be used as map keys.
type JID struct {
	locallen  int
	domainlen int
	data      string
}

// Parse constructs a new JID from the given string representation.
func Parse(s string) (JID, error) {
	localpart, domainpart, resourcepart, err := SplitString(s)
	if err != nil {
		return JID{}, err
	}
	return New(localpart, domainpart, resourcepart)
}

// MustParse is like Parse but panics if the JID cannot be parsed.
// It simplifies safe initialization of JIDs from known-good constant strings.
func MustParse(s string) JID {
	j, err := Parse(s)
	if err != nil {
		if strconv.CanBackquote(s) {
			s = "`" + s + "`"
		} else {
			s = strconv.Quote(s)
		}
		panic(`jid: Parse(` + s + `): ` + err.Error())
	}
	return j
}

// New constructs a new JID from the given localpart, domainpart, and
// resourcepart.
func New(localpart, domainpart, resourcepart string) (JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(resourcepart) {
		return JID{}, ErrInvalidUTF8
	}

	domainpart, err := idna.ToUnicode(strings.TrimSuffix(domainpart, "."))
	if err != nil {
		return JID{}, err
	}
	if !utf8.ValidString(domainpart) {
		return JID{}, ErrInvalidUTF8
	}
	if l := len(domainpart); l < 1 || l > 1023 {
		return JID{}, ErrEmptyDomain
	}
	if err := checkIP6String(domainpart); err != nil {
		return JID{}, err
	}

	var b strings.Builder
	if localpart != "" {
		if strings.ContainsAny(localpart, Forbidden) {
			return JID{}, ErrForbiddenChars
		}
		local, err := precis.UsernameCasePreserved.String(localpart)
		if err != nil {
			return JID{}, err
		}
		if len(local) > 1023 {
			return JID{}, ErrTooLong
		}
		b.WriteString(local)
	}
	locallen := b.Len()
	b.WriteString(domainpart)

	if resourcepart != "" {
		res, err := precis.OpaqueString.String(resourcepart)
		if err != nil {
			return JID{}, err
		}
		if len(res) > 1023 {
			return JID{}, ErrTooLong
		}
		b.WriteString(res)
	}

	return JID{
		locallen:  locallen,
		domainlen: len(domainpart),
		data:      b.String(),
	}, nil
}

// User returns the address of the user with the given numeric id on domain.
func User(id uint64, domain string) (JID, error) {
	return New(strconv.FormatUint(id, 10), domain, "")
}

// UserID parses the localpart of j as a numeric user id.
func (j JID) UserID() (uint64, error) {
	id, err := strconv.ParseUint(j.Localpart(), 10, 64)
	if err != nil {
		return 0, ErrNotUser
	}
	return id, nil
}

// WithResource returns a copy of the JID with a new resourcepart.
// This elides validation of the localpart and domainpart.
func (j JID) WithResource(resourcepart string) (JID, error) {
	bare := j.Bare()
	if resourcepart == "" {
		return bare, nil
	}
	if !utf8.ValidString(resourcepart) {
		return JID{}, ErrInvalidUTF8
	}
	res, err := precis.OpaqueString.String(resourcepart)
	if err != nil {
		return JID{}, err
	}
	bare.data += res
	return bare, nil
}

// Bare returns a copy of the JID without a resourcepart.
func (j JID) Bare() JID {
	return JID{
		locallen:  j.locallen,
		domainlen: j.domainlen,
		data:      j.data[:j.locallen+j.domainlen],
	}
}

// Domain returns a copy of the JID without a resourcepart or localpart.
func (j JID) Domain() JID {
	return JID{
		domainlen: j.domainlen,
		data:      j.data[j.locallen : j.locallen+j.domainlen],
	}
}

// Localpart gets the localpart of a JID (eg "42").
func (j JID) Localpart() string {
	return j.data[:j.locallen]
}

// Domainpart gets the domainpart of a JID (eg. "chat.example.net").
func (j JID) Domainpart() string {
	return j.data[j.locallen : j.locallen+j.domainlen]
}

// Resourcepart gets the resourcepart of a JID.
func (j JID) Resourcepart() string {
	return j.data[j.locallen+j.domainlen:]
}

// Equal performs an octet-for-octet comparison with the given JID.
func (j JID) Equal(j2 JID) bool {
	return j == j2
}

// EqualFold is like Equal except that the localparts are compared after case
// mapping.
func (j JID) EqualFold(j2 JID) bool {
	if j.Domainpart() != j2.Domainpart() || j.Resourcepart() != j2.Resourcepart() {
		return false
	}
	l1, l2 := j.Localpart(), j2.Localpart()
	if l1 == l2 {
		return true
	}
	f1, err := precis.UsernameCaseMapped.String(l1)
	if err != nil {
		return false
	}
	f2, err := precis.UsernameCaseMapped.String(l2)
	return err == nil && f1 == f2
}

// IsZero reports whether j is the empty address.
func (j JID) IsZero() bool {
	return j.data == ""
}

// Network satisfies the net.Addr interface by returning the name of the
// network ("xmpp").
func (JID) Network() string {
	return "xmpp"
}

// String converts a JID to its string representation.
func (j JID) String() string {
	if j.data == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(j.data) + 2)
	if j.locallen > 0 {
		b.WriteString(j.Localpart())
		b.WriteByte('@')
	}
	b.WriteString(j.Domainpart())
	if r := j.Resourcepart(); r != "" {
		b.WriteByte('/')
		b.WriteString(r)
	}
	return b.String()
}

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface and marshals the
// JID as an XML attribute.
// The empty address results in no attribute.
func (j JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if j.IsZero() {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies the xml.UnmarshalerAttr interface and unmarshals
// an XML attribute into a valid JID (or returns an error).
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		*j = JID{}
		return nil
	}
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// SplitString splits out the localpart, domainpart, and resourcepart from a
// string representation of a JID.
// The parts are not guaranteed to be valid.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	// RFC 7622 §3.1: the separators must be matched before any transformation
	// is applied.
	if sep := strings.Index(s, "/"); sep != -1 {
		if sep == len(s)-1 {
			return "", "", "", ErrEmptyResource
		}
		resourcepart = s[sep+1:]
		s = s[:sep]
	}

	switch sep := strings.Index(s, "@"); sep {
	case -1:
		domainpart = s
	case 0:
		return "", "", "", ErrEmptyLocal
	default:
		localpart = s[:sep]
		domainpart = s[sep+1:]
	}

	return localpart, strings.TrimSuffix(domainpart, "."), resourcepart, nil
}

func checkIP6String(domainpart string) error {
	if l := len(domainpart); l > 2 && strings.HasPrefix(domainpart, "[") &&
		strings.HasSuffix(domainpart, "]") {
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return errors.New("jid: domainpart is not a valid IPv6 address")
		}
	}
	return nil
}
