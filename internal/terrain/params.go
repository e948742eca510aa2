package terrain

// ContourParams configures contour tracing.
type ContourParams struct {
	Band     int     `yaml:"band" json:"band"`
	Interval float64 `yaml:"interval" json:"interval"`
	Field    string  `yaml:"field" json:"field"`
}

func (p ContourParams) AsParams() Params {
	return Params{"BAND": p.Band, "INTERVAL": p.Interval, "FIELD_NAME": p.Field}
}

// SlopeParams configures the slope stage. Output units are percent.
type SlopeParams struct {
	ZFactor float64 `yaml:"z_factor" json:"z_factor"`
}

func (p SlopeParams) AsParams() Params { return Params{"Z_FACTOR": p.ZFactor} }

// HillshadeParams configures shaded relief.
type HillshadeParams struct {
	ZFactor          float64 `yaml:"z_factor" json:"z_factor"`
	Scale            float64 `yaml:"scale" json:"scale"`
	Azimuth          float64 `yaml:"azimuth" json:"azimuth"`
	Altitude         float64 `yaml:"altitude" json:"altitude"`
	Multidirectional bool    `yaml:"multidirectional" json:"multidirectional"`
}

func (p HillshadeParams) AsParams() Params {
	return Params{
		"Z_FACTOR":         p.ZFactor,
		"SCALE":            p.Scale,
		"AZIMUTH":          p.Azimuth,
		"ALTITUDE":         p.Altitude,
		"MULTIDIRECTIONAL": p.Multidirectional,
	}
}

// AspectParams configures aspect.
type AspectParams struct {
	TrigAngle bool `yaml:"trig_angle" json:"trig_angle"`
	ZeroFlat  bool `yaml:"zero_flat" json:"zero_flat"`
}

func (p AspectParams) AsParams() Params {
	return Params{"TRIG_ANGLE": p.TrigAngle, "ZERO_FLAT": p.ZeroFlat}
}

// ReliefParams configures colour relief.
type ReliefParams struct {
	ZFactor    float64 `yaml:"z_factor" json:"z_factor"`
	AutoColors bool    `yaml:"auto_colors" json:"auto_colors"`
}

func (p ReliefParams) AsParams() Params {
	return Params{"Z_FACTOR": p.ZFactor, "AUTO_COLORS": p.AutoColors}
}

// RuggednessParams configures the terrain ruggedness index.
type RuggednessParams struct {
	ZFactor float64 `yaml:"z_factor" json:"z_factor"`
}

func (p RuggednessParams) AsParams() Params { return Params{"Z_FACTOR": p.ZFactor} }

// Connectivity is the neighbourhood rule used when grouping raster cells.
type Connectivity int

const (
	FourConnected  Connectivity = 4
	EightConnected Connectivity = 8
)

// PolygonizeParams configures raster-to-polygon vectorization.
type PolygonizeParams struct {
	Band         int          `yaml:"band" json:"band"`
	Field        string       `yaml:"field" json:"field"`
	Connectivity Connectivity `yaml:"connectivity" json:"connectivity"`
}

func (p PolygonizeParams) AsParams() Params {
	return Params{
		"BAND":                p.Band,
		"FIELD":               p.Field,
		"EIGHT_CONNECTEDNESS": p.Connectivity == EightConnected,
	}
}
