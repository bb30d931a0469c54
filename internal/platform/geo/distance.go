package geo

import (
	"math"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/uber/h3-go/v4"
)

const (
	EarthRadiusMeters = 6371000.0
	// CellResolution : une cellule H3 de résolution 9 couvre environ 0,1 km².
	CellResolution = 9
)

// DistanceMeters calcule la distance orthodromique (Haversine) en mètres.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// FindNearest parcourt linéairement les lieux connus et retourne le plus
// proche s'il est à moins de maxMeters.
func FindNearest(locations []entity.Location, lat, lon, maxMeters float64) (*entity.Location, float64, bool) {
	best := -1
	bestDist := math.MaxFloat64
	for i := range locations {
		d := DistanceMeters(lat, lon, locations[i].Latitude, locations[i].Longitude)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > maxMeters {
		return nil, 0, false
	}
	loc := locations[best]
	return &loc, bestDist, true
}

// CellIndex retourne l'index H3 utilisé pour agréger les incidents par zone.
func CellIndex(lat, lon float64) string {
	cell := h3.LatLngToCell(h3.NewLatLng(lat, lon), CellResolution)
	return cell.String()
}

func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
