package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/donorhub/donorhub/internal/app"
	"github.com/donorhub/donorhub/internal/donations"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/users"
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer backend.Close()

	core, err := app.NewCore(cfg, app.CoreOptions{Store: backend.Store, Logger: logger})
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}

	fmt.Println("→ Seeding permissions...")
	if err := core.Config.Save(ctx, permissions.DefaultAppPermissions()); err != nil {
		log.Fatalf("seed permissions: %v", err)
	}

	fmt.Println("→ Seeding users...")
	if err := seedUsers(ctx, core.UserRepo); err != nil {
		log.Fatalf("seed users: %v", err)
	}

	fmt.Println("→ Seeding donations...")
	if err := seedDonations(ctx, donations.NewRepository(backend.Store)); err != nil {
		log.Fatalf("seed donations: %v", err)
	}

	fmt.Println("✓ Seed complete")
}

func seedUsers(ctx context.Context, repo *users.Repository) error {
	now := time.Now().UTC()
	requested := now.Add(-2 * time.Hour)
	seed := []users.User{
		{ID: "seed-admin", Role: permissions.RoleAdmin, Email: "admin@donorhub.local", Name: "Dewi Admin", HasDirectoryAccess: true, HasSupportAccess: true},
		{ID: "seed-editor", Role: permissions.RoleEditor, Email: "editor@donorhub.local", Name: "Budi Editor"},
		{
			ID: "seed-donor-1", Role: permissions.RoleUser, Email: "ayu@donorhub.local", Name: "Ayu", BloodGroup: "O+",
			IDCardAccessRequested: true, IDCardAccessRequestedAt: &requested,
		},
		{
			ID: "seed-donor-2", Role: permissions.RoleUser, Email: "rizky@donorhub.local", Name: "Rizky", BloodGroup: "AB-",
			DirectoryAccessRequested: true, DirectoryAccessRequestedAt: &requested,
			FeedbackAccessRequested: true, FeedbackAccessRequestedAt: &requested,
		},
	}
	for _, u := range seed {
		u.CreatedAt = now
		u.UpdatedAt = now
		if err := repo.Create(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func seedDonations(ctx context.Context, repo *donations.Repository) error {
	now := time.Now().UTC()
	seed := []donations.Donation{
		{ID: "seed-donation-1", DonorID: "seed-donor-1", DonorName: "Ayu", BloodGroup: "O+", Units: 1, Location: "PMI Bandung", Status: donations.StatusPending, CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "seed-donation-2", DonorID: "seed-donor-2", DonorName: "Rizky", BloodGroup: "AB-", Units: 2, Location: "RS Hasan Sadikin", Status: donations.StatusApproved, ReviewedBy: "seed-admin", CreatedAt: now.Add(-72 * time.Hour)},
	}
	for _, d := range seed {
		if err := repo.Create(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
