//go:build !race

package auth

import "golang.org/x/crypto/bcrypt"

// passwordHashCost is the fallback work factor, 10 rounds
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
