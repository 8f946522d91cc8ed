package scene

// Scene classification codes produced by sen2cor (SCL band).
const (
	ClassNoData       uint8 = 0
	ClassSaturated    uint8 = 1
	ClassDarkFeature  uint8 = 2
	ClassCloudShadow  uint8 = 3
	ClassVegetation   uint8 = 4
	ClassNotVegetated uint8 = 5
	ClassWater        uint8 = 6
	ClassUnclassified uint8 = 7
	ClassCloudMedium  uint8 = 8
	ClassCloudHigh    uint8 = 9
	ClassThinCirrus   uint8 = 10
	ClassSnow         uint8 = 11
)

// IsGood reports whether a pixel is usable for compositing: vegetation,
// bare ground or water.
func IsGood(class uint8) bool {
	return class >= ClassVegetation && class <= ClassWater
}
