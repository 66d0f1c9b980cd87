package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// ErrInvalidCoordinates is the parent of every coordinate validation error.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// ErrCoordinatesMissing is returned when lat or lon is empty after trim.
var ErrCoordinatesMissing = fmt.Errorf("%w: lat and lon are required", ErrInvalidCoordinates)

// ErrLatitudeOutOfRange is returned for latitudes outside [-90, 90] or NaN.
var ErrLatitudeOutOfRange = fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidCoordinates)

// ErrLongitudeOutOfRange is returned for longitudes outside [-180, 180] or NaN.
var ErrLongitudeOutOfRange = fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidCoordinates)

// ValidateCoordinates rejects NaN, infinities and out-of-range values.
// Errors match ErrInvalidCoordinates via errors.Is, suitable for 400 INVALID_COORDINATES responses.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

// ParseCoordinates parses decimal-degree query values and validates them.
func ParseCoordinates(latRaw, lonRaw string) (models.Coordinates, error) {
	latStr := strings.TrimSpace(latRaw)
	lonStr := strings.TrimSpace(lonRaw)
	if latStr == "" || lonStr == "" {
		return models.Coordinates{}, ErrCoordinatesMissing
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: latitude %q is not a number", ErrInvalidCoordinates, latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: longitude %q is not a number", ErrInvalidCoordinates, lonStr)
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return models.Coordinates{}, err
	}
	return models.Coordinates{Latitude: lat, Longitude: lon}, nil
}
