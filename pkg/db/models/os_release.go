package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OSRelease is a catalog entry for a downloadable build.
type OSRelease struct {
	ID             int64           `gorm:"column:id;primaryKey"`
	Name           string          `gorm:"column:name;not null"`
	Route          string          `gorm:"column:route;not null;uniqueIndex"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	ReleaseDate    time.Time       `gorm:"column:release_date;not null"`
	YoutubeLink    *string         `gorm:"column:youtube_link"`
	CreatorLink    *string         `gorm:"column:creator_link"`
	DownloadLink   *string         `gorm:"column:download_link"`
	CPU            *string         `gorm:"column:cpu"`
	Disk           *string         `gorm:"column:disk"`
	MinimumRAM     *string         `gorm:"column:minimum_ram"`
	RecommendedRAM *string         `gorm:"column:recommended_ram"`
	OtherReq       *string         `gorm:"column:other_req"`
}

func (OSRelease) TableName() string {
	return "os_release"
}
