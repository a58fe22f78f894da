package seed

import (
	"context"
	"log"

	"github.com/popup-village/portal-backend/internal/repository"
)

// SeedData inserts a few citizens for development so the linking flow can be
// exercised without going through signup. Safe to run repeatedly: existing
// emails are skipped.
func SeedData(repos *repository.Repositories) {
	ctx := context.Background()

	citizens := []struct {
		email     string
		firstName string
	}{
		{"alice@example.com", "Alice"},
		{"bob@example.com", "Bob"},
		{"carol@example.com", "Carol"},
	}

	for _, c := range citizens {
		existing, err := repos.CitizenRepo.FindByEmail(ctx, c.email)
		if err != nil {
			log.Printf("[Seed] Failed to check for %s: %v", c.email, err)
			continue
		}
		if existing != nil {
			continue
		}

		firstName := c.firstName
		citizen := &repository.Citizen{
			PrimaryEmail: c.email,
			FirstName:    &firstName,
		}
		if err := repos.CitizenRepo.Create(ctx, citizen); err != nil {
			log.Printf("[Seed] Failed to create %s: %v", c.email, err)
			continue
		}
		log.Printf("[Seed] Created citizen %d (%s)", citizen.ID, citizen.PrimaryEmail)
	}
}
