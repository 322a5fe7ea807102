package utils

import "golang.org/x/crypto/bcrypt"

// HashAdminSecret returns the bcrypt hash of an admin secret for use as
// ADMIN_SECRET_HASH, so deployments never have to store the plain
// secret in their environment.
func HashAdminSecret(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyAdminSecret compares a bcrypt hash against a presented secret.
func VerifyAdminSecret(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
