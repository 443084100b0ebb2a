// Package joincode allocates short human-shareable project join codes.
package joincode

import (
	"crypto/rand"
	"fmt"
	"log"
	"time"

	"github.com/grouperhq/grouper/internal/models"
	"gorm.io/gorm"
)

// alphabet omits 0/O/1/I to avoid visual confusion when codes are shared
// verbally or on paper.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	defaultLength = 6
	maxAttempts   = 5
	// deletedWindow keeps codes of recently soft-deleted projects reserved,
	// so a re-shared code cannot land someone in a stranger's new project.
	deletedWindow = 30 * 24 * time.Hour
)

// Random returns a random code of n characters from the alphabet.
func Random(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("joincode: random: %w", err)
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf), nil
}

// randomCode generates candidate codes. Tests swap it to force collisions.
var randomCode = Random

// Allocate generates a unique join code. On repeated collision the code
// length escalates rather than looping forever: attempts 4-5 use one extra
// character, and the last resort is an 8-character code returned unchecked.
func Allocate(db *gorm.DB) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		length := defaultLength
		if attempt >= 3 {
			length++
		}
		code, err := randomCode(length)
		if err != nil {
			return "", err
		}
		taken, err := inUse(db, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		log.Printf("joincode: collision attempt=%d code=%s", attempt, code)
	}
	return randomCode(8)
}

// inUse reports whether code collides with an active project or one
// soft-deleted within the retention window.
func inUse(db *gorm.DB, code string) (bool, error) {
	cutoff := time.Now().Add(-deletedWindow)
	var count int64
	err := db.Unscoped().Model(&models.Project{}).
		Where("join_code = ?", code).
		Where("deleted_at IS NULL OR deleted_at > ?", cutoff).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("joincode: collision check: %w", err)
	}
	return count > 0, nil
}
