package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tiny11/tiny11-backend/pkg/db/models"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
)

type stubReleaseService struct {
	releases []models.OSRelease
	link     string
	err      error
}

func (s *stubReleaseService) List(ctx context.Context) ([]models.OSRelease, error) {
	return s.releases, s.err
}

func (s *stubReleaseService) FindByRoute(ctx context.Context, route string) (*models.OSRelease, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.releases {
		if s.releases[i].Route == route {
			return &s.releases[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "OS release not found")
}

func (s *stubReleaseService) CreatorLink(ctx context.Context, route string) (string, error) {
	return s.link, s.err
}

func (s *stubReleaseService) DownloadLink(ctx context.Context, route, downloadType string) (string, error) {
	return s.link, s.err
}

func sampleRelease() models.OSRelease {
	return models.OSRelease{
		ID:           3,
		Name:         "Tiny11 25H2",
		Route:        "tiny11-25h2",
		Price:        decimal.RequireFromString("12.5"),
		ReleaseDate:  time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		CreatorLink:  strPtr("https://cdn.example/creator"),
		DownloadLink: strPtr("https://cdn.example/iso"),
	}
}

func TestListReleasesHidesInstallerLink(t *testing.T) {
	svc := &stubReleaseService{releases: []models.OSRelease{sampleRelease()}}
	resp := httptest.NewRecorder()

	ListReleases(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/os-releases", nil))

	var body struct {
		Releases []map[string]any `json:"releases"`
	}
	decodeData(t, resp, &body)
	if len(body.Releases) != 1 {
		t.Fatalf("expected one release")
	}
	if _, ok := body.Releases[0]["download_link"]; ok {
		t.Fatalf("catalog must not expose the installer link")
	}
	if body.Releases[0]["price"] != "12.50" {
		t.Fatalf("unexpected price %v", body.Releases[0]["price"])
	}
}

func TestGetReleaseByRoute(t *testing.T) {
	svc := &stubReleaseService{releases: []models.OSRelease{sampleRelease()}}
	r := chi.NewRouter()
	r.Get("/api/os-releases/{route}", GetRelease(svc, nil))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/os-releases/tiny11-25h2", nil))

	var body struct {
		Release releaseDTO `json:"release"`
	}
	decodeData(t, resp, &body)
	if body.Release.Name != "Tiny11 25H2" {
		t.Fatalf("unexpected release %+v", body.Release)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/os-releases/missing", nil))
	if env := decodeEnvelope(t, resp); resp.Code != http.StatusNotFound || env.Error.Message != "OS release not found" {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body.String())
	}
}

func TestDownloadCreator(t *testing.T) {
	svc := &stubReleaseService{link: "https://cdn.example/creator"}
	resp := httptest.NewRecorder()

	DownloadCreator(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/download-creator?route=tiny11-25h2", nil))

	var body map[string]string
	decodeData(t, resp, &body)
	if body["downloadUrl"] != "https://cdn.example/creator" {
		t.Fatalf("unexpected body %v", body)
	}

	resp = httptest.NewRecorder()
	DownloadCreator(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/download-creator", nil))
	if env := decodeEnvelope(t, resp); resp.Code != http.StatusBadRequest || env.Error.Message != "Route is required" {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body.String())
	}
}
