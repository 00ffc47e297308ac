// Package cryptox implements the campaign password hash.
//
// The hash travels inside campaign metadata broadcasts and is compared
// client-side: a joining player hashes the password they were given and
// compares it against the hash the GM announces. The mesh itself stays
// permissioned only by room-id possession, so this gate is a convenience,
// not a security boundary against a hostile peer.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// CampaignPasswordHash derives a deterministic hash for the given campaign
// password. The salt is derived from the campaign id so every device of
// every participant computes the same value.
func CampaignPasswordHash(campaignID, password string) string {
	salt := sha256.Sum256([]byte("vaultmesh-campaign:" + campaignID))
	key := argon2.IDKey([]byte(password), salt[:], 1, 64*1024, 4, 32)
	return hex.EncodeToString(key)
}

// VerifyCampaignPassword reports whether password matches the announced
// hash. Comparison is constant-time.
func VerifyCampaignPassword(campaignID, password, announcedHash string) bool {
	got := CampaignPasswordHash(campaignID, password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(announcedHash)) == 1
}
