package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempesta-tech/webshield/internal/config"
	"github.com/tempesta-tech/webshield/pkg/accesslog"
	"github.com/tempesta-tech/webshield/pkg/geoip"
)

func TestGeoIPDetectorFiltersAllowedCities(t *testing.T) {
	dir := t.TempDir()
	citiesPath := filepath.Join(dir, "cities.csv")
	allowedPath := filepath.Join(dir, "allowed.txt")
	require.NoError(t, os.WriteFile(citiesPath, []byte("1.1.1.0/24,Allowedtown\n2.2.2.0/24,Blockedtown\n"), 0o644))
	require.NoError(t, os.WriteFile(allowedPath, []byte("Allowedtown\n"), 0o644))

	db := geoip.New()
	require.NoError(t, db.LoadCities(citiesPath))
	require.NoError(t, db.LoadAllowedCities(allowedPath))

	det := newGeoIPDetector(config.Default().Detector["geoip"], &fakeQuerier{}, db)

	// Exercise the filter directly; the fake querier has no rows, so
	// this isolates the allow-list logic from the SQL shape.
	gd := det.(*geoIPDetector)
	users := gd.filterAllowedCities(parseRows([]accesslog.Row{
		{nil, nil, []string{"1.1.1.5"}, "10"},
		{nil, nil, []string{"2.2.2.5"}, "10"},
	}))

	require.Len(t, users, 1)
	assert.Equal(t, []string{"2.2.2.5"}, users[0].IP)
}

func TestGeoIPDetectorNilDBPassesEverythingThrough(t *testing.T) {
	det := newGeoIPDetector(config.Default().Detector["geoip"], &fakeQuerier{}, nil)
	gd := det.(*geoIPDetector)

	users := gd.filterAllowedCities(parseRows([]accesslog.Row{
		{nil, nil, []string{"1.1.1.5"}, "10"},
	}))
	require.Len(t, users, 1)
}
