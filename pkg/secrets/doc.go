// Package secrets seals short credentials, such as store database passwords,
// before they are written to the master database.
//
// A Sealer holds one 32-byte master key. For every scope (a store code, for
// example) it derives a separate key with HKDF-SHA-256 and encrypts with
// AES-256-GCM. The scope is also bound as additional authenticated data, so
// a sealed value copied to another store's row fails to open.
//
// Sealed values are "v1:" followed by unpadded base64 of nonce, ciphertext
// and tag:
//
//	key, _ := secrets.ParseKey(os.Getenv("SECRETS_KEY"))
//	sealer, _ := secrets.NewSealer(key)
//
//	sealed, _ := sealer.Seal("downtown-01", "s3cret")
//	plain, _ := sealer.Open("downtown-01", sealed)
//
// IsSealed lets readers keep accepting rows written before sealing was enabled.
package secrets
