package core

// IonoFree combines two same-type measurements (code or phase in metres)
// into the first-order ionosphere-free value. gamma must not be 1.
func IonoFree(x1, x2, gamma float64) float64 {
	return (x2 - gamma*x1) / (1 - gamma)
}

// GeometryFree returns the geometry-free phase combination in metres.
func GeometryFree(l1m, l2m float64) float64 {
	return l1m - l2m
}
