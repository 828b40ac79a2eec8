package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// backupCodeAlphabet drops 0/O and 1/I so codes survive being read aloud.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const backupCodeLength = 10

func newBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(backupCodeLength)
	size := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < backupCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// formatBackupCode splits a code in half for display: ABCDE-FGHJK.
func formatBackupCode(code string) string {
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// canonicalBackupCode strips separators and case so "abcde fghjk" matches.
func canonicalBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// looksLikeBackupCode tells a backup code apart from a six-digit TOTP code.
func looksLikeBackupCode(canonical string) bool {
	if len(canonical) != backupCodeLength {
		return false
	}
	for i := 0; i < len(canonical); i++ {
		if !strings.ContainsRune(backupCodeAlphabet, rune(canonical[i])) {
			return false
		}
	}
	return true
}

// HashBackupCode binds a canonical code to its owner before hashing.
func HashBackupCode(principalID, canonical string) string {
	data := make([]byte, 0, len(principalID)+1+len(canonical))
	data = append(data, principalID...)
	data = append(data, 0)
	data = append(data, canonical...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// generateBackupCodes returns n display-formatted codes and their hashes.
func generateBackupCodes(principalID string, n int) (codes, hashes []string, err error) {
	codes = make([]string, 0, n)
	hashes = make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		raw, err := newBackupCode()
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, formatBackupCode(raw))
		hashes = append(hashes, HashBackupCode(principalID, raw))
	}
	return codes, hashes, nil
}
