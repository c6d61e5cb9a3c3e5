package mathx

// MapRange maps x in [inMin,inMax] to [outMin,outMax] linearly.
// Input outside the source range extrapolates; callers clamp the result
// when a hard bound is required. inMin == inMax yields outMin.
func MapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	if inMax == inMin {
		return outMin
	}
	return outMin + (x-inMin)*(outMax-outMin)/(inMax-inMin)
}
