// Package vcard renders profile fields as a vCard 3.0 payload suitable for
// a QR code.
package vcard

import (
	"strings"

	"github.com/dmitrijs2005/myid/internal/client/models"
)

type property struct {
	key    string
	format func(v string) string
}

// textEscaper escapes TEXT values per RFC 2426.
var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r\n", `\n`,
	"\r", `\n`,
	"\n", `\n`,
	",", `\,`,
	";", `\;`,
)

func escape(v string) string {
	return textEscaper.Replace(v)
}

func prefixed(p string) func(string) string {
	return func(v string) string { return p + escape(v) }
}

// properties are emitted in this order after FN. Empty values are skipped.
var properties = []property{
	{models.KeyEmail, prefixed("EMAIL:")},
	{models.KeyPhoneNumber, prefixed("TEL:")},
	{models.KeyAddress, func(v string) string { return "ADR:;;" + escape(v) + ";;;;" }},
	{models.KeyWebsite, prefixed("URL:")},
	{models.KeyLinkedInURL, prefixed("X-SOCIALPROFILE;TYPE=linkedin:")},
	{models.KeyFacebook, prefixed("X-SOCIALPROFILE;TYPE=facebook:")},
	{models.KeyInstagram, prefixed("X-SOCIALPROFILE;TYPE=instagram:")},
	{models.KeyWhatsAppLink, prefixed("X-SOCIALPROFILE;TYPE=whatsapp:")},
	{models.KeyFatherName, prefixed("X-FATHER:")},
	{models.KeyMotherName, prefixed("X-MOTHER:")},
	{models.KeyPassportNumber, prefixed("X-PASSPORT:")},
	{models.KeyAadhaar, prefixed("X-AADHAAR:")},
	{models.KeyDLNumber, prefixed("X-DL:")},
	{models.KeyPANCardNumber, prefixed("X-PAN:")},
	{models.KeyUPIAddress, prefixed("X-UPI:")},
}

// Build returns the newline-joined vCard for values. FN is always present,
// possibly empty. Values are escaped.
func Build(values map[string]string) string {
	lines := []string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"FN:" + escape(fullName(values)),
	}
	for _, p := range properties {
		if v := values[p.key]; v != "" {
			lines = append(lines, p.format(v))
		}
	}
	lines = append(lines, "END:VCARD")
	return strings.Join(lines, "\n")
}

func fullName(values map[string]string) string {
	var parts []string
	for _, k := range []string{models.KeyFirstName, models.KeyLastName} {
		if v := values[k]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
