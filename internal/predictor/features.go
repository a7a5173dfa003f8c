package predictor

import "github.com/rfsavaris/raincast/internal/models"

// FeatureVersion names the feature vector contract in effect. It travels
// with every ForecastResult so a stored probability can always be traced
// back to the input layout that produced it. Bump this together with the
// model whenever the layout changes.
const FeatureVersion = "v1"

// FeaturesV1 assembles the model input in its contractual order:
//
//	[pressure_mbar, temp_c, humidity_pct, uv, cloud_cover_pct, precip_mm]
//
// The order is part of the wire contract with the inference process and
// must never change independently of it. Pressure arrives in Pa and is
// scaled to mbar here; the model never does unit conversion. UV is the
// classification string, absent precipitation encodes as 0.
func FeaturesV1(r models.Reading, cloudCover float64) []any {
	return []any{
		r.PressurePa * 0.01,
		r.TempC,
		r.Humidity,
		r.UV,
		cloudCover,
		r.PrecipOrZero(),
	}
}
