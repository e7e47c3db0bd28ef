package models

import "time"

// ExchangeAccount holds the encrypted credentials for the single
// configured exchange this agent trades against. APIKey/SecretKey/
// Passphrase are stored AES-256-GCM-encrypted (pkg/crypto) and never
// serialized to JSON.
type ExchangeAccount struct {
	ID int64

	Name string // e.g. "bitget", "okx" — must be in exchange.SupportedExchanges

	APIKey     string `json:"-"`
	SecretKey  string `json:"-"`
	Passphrase string `json:"-"`

	Connected bool
	LastError string

	UpdatedAt time.Time
	CreatedAt time.Time
}
