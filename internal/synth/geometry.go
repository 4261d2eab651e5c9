package synth

import "math"

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84E2 = 6.69437999014e-3
)

// Vec3 is an ECEF vector in metres.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func (v Vec3) lerp(to Vec3, f float64) Vec3 {
	return Vec3{
		X: v.X + (to.X-v.X)*f,
		Y: v.Y + (to.Y-v.Y)*f,
		Z: v.Z + (to.Z-v.Z)*f,
	}
}

// Geodetic converts WGS-84 latitude and longitude (degrees) and
// ellipsoidal height (metres) to ECEF.
func Geodetic(latDeg, lonDeg, h float64) Vec3 {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return Vec3{
		X: (n + h) * cosLat * math.Cos(lon),
		Y: (n + h) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + h) * sinLat,
	}
}

// LookAngles returns elevation and azimuth (degrees, azimuth clockwise
// from north in [0, 360)) and the slant range (metres) of target as seen
// from observer. The local vertical is the geocentric one.
func LookAngles(observer, target Vec3) (elev, az, rng float64) {
	v := target.Sub(observer)
	rng = v.Norm()
	r := observer.Norm()
	if rng == 0 || r == 0 {
		return 90, 0, rng
	}

	lat := math.Asin(observer.Z / r)
	lon := math.Atan2(observer.Y, observer.X)
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	east := Vec3{X: -sinLon, Y: cosLon}
	north := Vec3{X: -sinLat * cosLon, Y: -sinLat * sinLon, Z: cosLat}
	up := Vec3{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat}

	e, n, u := v.Dot(east), v.Dot(north), v.Dot(up)
	elev = math.Asin(clamp(u/rng, -1, 1)) * 180 / math.Pi
	az = math.Atan2(e, n) * 180 / math.Pi
	if az < 0 {
		az += 360
	}
	return elev, az, rng
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
