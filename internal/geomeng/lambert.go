package geomeng

import "math"

// Lambert-93 (EPSG:2154) conformal conic projection on the GRS80 ellipsoid,
// the official projected frame for metropolitan France. Parameters from the
// IGN NTG 71 definition.
const (
	grs80A  = 6378137.0
	grs80F  = 1.0 / 298.257222101
	l93Lat0 = 46.5 * math.Pi / 180
	l93Lon0 = 3.0 * math.Pi / 180
	l93Lat1 = 44.0 * math.Pi / 180
	l93Lat2 = 49.0 * math.Pi / 180
	l93X0   = 700000.0
	l93Y0   = 6600000.0
)

type lambert93 struct {
	e    float64 // first eccentricity
	n    float64 // cone constant
	aF   float64 // a * F
	rho0 float64 // radius at the latitude of origin
}

func newLambert93() *lambert93 {
	e2 := grs80F * (2 - grs80F)
	e := math.Sqrt(e2)

	m1 := lccM(l93Lat1, e)
	m2 := lccM(l93Lat2, e)
	t0 := lccT(l93Lat0, e)
	t1 := lccT(l93Lat1, e)
	t2 := lccT(l93Lat2, e)

	n := (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	aF := grs80A * m1 / (n * math.Pow(t1, n))

	return &lambert93{
		e:    e,
		n:    n,
		aF:   aF,
		rho0: aF * math.Pow(t0, n),
	}
}

func lccM(lat, e float64) float64 {
	s := math.Sin(lat)
	return math.Cos(lat) / math.Sqrt(1-e*e*s*s)
}

func lccT(lat, e float64) float64 {
	s := math.Sin(lat)
	return math.Tan(math.Pi/4-lat/2) / math.Pow((1-e*s)/(1+e*s), e/2)
}

// forward projects geographic lon/lat (degrees, EPSG:4326) to Lambert-93
// easting/northing (metres).
func (p *lambert93) forward(lon, lat float64) (x, y float64) {
	lonR := lon * math.Pi / 180
	latR := lat * math.Pi / 180

	rho := p.aF * math.Pow(lccT(latR, p.e), p.n)
	theta := p.n * (lonR - l93Lon0)

	x = l93X0 + rho*math.Sin(theta)
	y = l93Y0 + p.rho0 - rho*math.Cos(theta)
	return x, y
}

// inverse converts Lambert-93 easting/northing back to lon/lat degrees.
func (p *lambert93) inverse(x, y float64) (lon, lat float64) {
	dx := x - l93X0
	dy := p.rho0 - (y - l93Y0)

	rho := math.Sqrt(dx*dx + dy*dy)
	theta := math.Atan2(dx, dy)
	t := math.Pow(rho/p.aF, 1/p.n)

	lonR := l93Lon0 + theta/p.n

	// Latitude by fixed-point iteration on the isometric latitude.
	latR := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 10; i++ {
		s := math.Sin(latR)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-p.e*s)/(1+p.e*s), p.e/2))
		if math.Abs(next-latR) < 1e-12 {
			latR = next
			break
		}
		latR = next
	}

	return lonR * 180 / math.Pi, latR * 180 / math.Pi
}
