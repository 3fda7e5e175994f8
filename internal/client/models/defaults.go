package models

// Well-known field keys of the built-in catalogue.
const (
	KeyFirstName        = "firstName"
	KeyLastName         = "lastName"
	KeyFatherName       = "fatherName"
	KeyMotherName       = "motherName"
	KeyEmail            = "email"
	KeyPhoneNumber      = "phoneNumber"
	KeyAddress          = "address"
	KeyPermanentAddress = "permanentAddress"
	KeyWebsite          = "website"
	KeyPassportNumber   = "passportNumber"
	KeyAadhaar          = "aadhaar"
	KeyDLNumber         = "dlNumber"
	KeyPANCardNumber    = "panCardNumber"
	KeyUPIAddress       = "upiAddress"
	KeyLinkedInURL      = "linkedInUrl"
	KeyFacebook         = "facebook"
	KeySkypeID          = "skypeId"
	KeyWhatsAppLink     = "whatsappLink"
	KeyInstagram        = "instagram"
)

var defaultLabels = map[string]string{
	KeyFirstName:        "First Name",
	KeyLastName:         "Last Name",
	KeyFatherName:       "Father's Name",
	KeyMotherName:       "Mother's Name",
	KeyEmail:            "Email",
	KeyPhoneNumber:      "Phone Number",
	KeyAddress:          "Address",
	KeyPermanentAddress: "Permanent Address",
	KeyWebsite:          "Website",
	KeyPassportNumber:   "Passport Number",
	KeyAadhaar:          "Aadhaar",
	KeyDLNumber:         "Driving Licence",
	KeyPANCardNumber:    "PAN Card",
	KeyUPIAddress:       "UPI Address",
	KeyLinkedInURL:      "LinkedIn",
	KeyFacebook:         "Facebook",
	KeySkypeID:          "Skype",
	KeyWhatsAppLink:     "WhatsApp",
	KeyInstagram:        "Instagram",
	FullNameKey:         "Full Name",
}

// Label returns the display label for key, falling back to the key itself.
func Label(key string) string {
	if l, ok := defaultLabels[key]; ok {
		return l
	}
	return key
}

func section(id, title, icon, color string, keys ...string) Section {
	s := Section{ID: id, Title: title, Icon: icon, Color: color, Fields: make([]Field, 0, len(keys))}
	for _, k := range keys {
		s.Fields = append(s.Fields, Field{Key: k, Label: Label(k)})
	}
	return s
}

// DefaultSchema returns the schema a fresh profile starts with.
func DefaultSchema() Schema {
	personal := section("personal", "Personal", "user", "#4f46e5",
		KeyFirstName, KeyLastName, KeyFatherName, KeyMotherName)
	personal.Fields[0].Required = true

	return Schema{
		Version: SchemaVersion,
		Sections: []Section{
			personal,
			section("contact", "Contact", "phone", "#0891b2",
				KeyEmail, KeyPhoneNumber, KeyAddress, KeyPermanentAddress, KeyWebsite),
			section("documents", "Documents", "id-card", "#b45309",
				KeyPassportNumber, KeyAadhaar, KeyDLNumber, KeyPANCardNumber),
			section("payments", "Payments", "wallet", "#15803d",
				KeyUPIAddress),
			section("social", "Social", "share", "#db2777",
				KeyLinkedInURL, KeyFacebook, KeySkypeID, KeyWhatsAppLink, KeyInstagram),
		},
	}
}
