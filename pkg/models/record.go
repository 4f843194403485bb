package models

import "time"

// Category tags an entry with the section of the organizer it belongs to.
type Category string

const (
	CategoryDigitalAccounts Category = "digital-accounts"
	CategoryFinancialAssets Category = "financial-assets"
	CategoryKeyContacts     Category = "key-contacts"
	CategoryEndOfLifeWishes Category = "end-of-life-wishes"
)

// Categories lists every category in canonical order.
var Categories = []Category{
	CategoryDigitalAccounts,
	CategoryFinancialAssets,
	CategoryKeyContacts,
	CategoryEndOfLifeWishes,
}

var categoryNames = map[Category]string{
	CategoryDigitalAccounts: "Digital Accounts",
	CategoryFinancialAssets: "Financial Assets",
	CategoryKeyContacts:     "Key Contacts",
	CategoryEndOfLifeWishes: "End-of-Life Wishes",
}

// categoryFields are the form fields of each category, in display order.
var categoryFields = map[Category][]string{
	CategoryDigitalAccounts: {"service", "username", "password", "recoveryEmail", "twoFactor", "notes"},
	CategoryFinancialAssets: {"institution", "accountType", "accountNumber", "contactInfo", "beneficiary", "notes"},
	CategoryKeyContacts:     {"name", "relationship", "email", "phone", "alternatePhone", "address", "notes"},
	CategoryEndOfLifeWishes: {"title", "description", "location", "accessInfo", "notes"},
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// DisplayName returns the human-readable category name. Unknown categories
// are returned verbatim.
func (c Category) DisplayName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

// Fields returns the ordered field keys for c, or nil for unknown categories.
func (c Category) Fields() []string {
	f := categoryFields[c]
	out := make([]string, len(f))
	copy(out, f)
	return out
}

// EncryptedRecord is the persisted form of one entry. Only ciphertext is stored.
type EncryptedRecord struct {
	ID           string    `json:"id"`
	Category     Category  `json:"category"`
	CipherText   []byte    `json:"cipherText"`
	Nonce        []byte    `json:"nonce"`
	LastModified time.Time `json:"lastModified"`
}

// Entry is a decrypted record as seen by an unlocked session.
type Entry struct {
	ID           string         `json:"id"`
	Category     Category       `json:"category"`
	Fields       map[string]any `json:"fields"`
	LastModified time.Time      `json:"lastModified"`
}
