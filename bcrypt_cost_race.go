//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds are slow enough already, hash with the minimum work factor
func passwordHashCost() int {
	return bcrypt.MinCost
}
