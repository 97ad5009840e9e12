package controllers

import (
	"time"

	"github.com/tiny11/tiny11-backend/pkg/db/models"
)

type identityDTO struct {
	Email      string     `json:"email"`
	LicenseKey *string    `json:"license_key"`
	ExpiryDate *time.Time `json:"expirydate"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toIdentityDTO(identity *models.Identity) *identityDTO {
	if identity == nil {
		return nil
	}
	return &identityDTO{
		Email:      identity.Email,
		LicenseKey: identity.LicenseKey,
		ExpiryDate: identity.ExpiryDate,
		CreatedAt:  identity.CreatedAt,
		UpdatedAt:  identity.UpdatedAt,
	}
}

// releaseDTO is the public catalog view. The installer link is only handed
// out after payment.
type releaseDTO struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Route          string    `json:"route"`
	Price          string    `json:"price"`
	ReleaseDate    time.Time `json:"release_date"`
	YoutubeLink    *string   `json:"youtube_link"`
	CreatorLink    *string   `json:"creator_link"`
	CPU            *string   `json:"cpu"`
	Disk           *string   `json:"disk"`
	MinimumRAM     *string   `json:"minimum_ram"`
	RecommendedRAM *string   `json:"recommended_ram"`
	OtherReq       *string   `json:"other_req"`
}

// ownedReleaseDTO is a release the caller has bought.
type ownedReleaseDTO struct {
	releaseDTO
	DownloadLink *string `json:"download_link"`
}

func toReleaseDTO(release models.OSRelease) releaseDTO {
	return releaseDTO{
		ID:             release.ID,
		Name:           release.Name,
		Route:          release.Route,
		Price:          release.Price.StringFixed(2),
		ReleaseDate:    release.ReleaseDate,
		YoutubeLink:    release.YoutubeLink,
		CreatorLink:    release.CreatorLink,
		CPU:            release.CPU,
		Disk:           release.Disk,
		MinimumRAM:     release.MinimumRAM,
		RecommendedRAM: release.RecommendedRAM,
		OtherReq:       release.OtherReq,
	}
}

func toReleaseDTOs(releases []models.OSRelease) []releaseDTO {
	out := make([]releaseDTO, 0, len(releases))
	for _, release := range releases {
		out = append(out, toReleaseDTO(release))
	}
	return out
}

func toOwnedReleaseDTOs(releases []models.OSRelease) []ownedReleaseDTO {
	out := make([]ownedReleaseDTO, 0, len(releases))
	for _, release := range releases {
		out = append(out, ownedReleaseDTO{releaseDTO: toReleaseDTO(release), DownloadLink: release.DownloadLink})
	}
	return out
}

type purchaseDTO struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Route     string    `json:"route"`
	CreatedAt time.Time `json:"created_at"`
}

func toPurchaseDTO(purchase *models.StandalonePurchase) *purchaseDTO {
	if purchase == nil {
		return nil
	}
	return &purchaseDTO{
		ID:        purchase.ID,
		Email:     purchase.Email,
		Route:     purchase.Route,
		CreatedAt: purchase.CreatedAt,
	}
}
