package eyestate

import (
	"image"
	"math"

	"github.com/teslashibe/go-engage/pkg/detection"
)

// LandmarkRegion returns the crop box around one eye's landmark points,
// padded by adaptive margins and clipped to the face box.
//
// Width margin is max(1.5% of face width, 70% of eye width); height margin
// is max(1.5% of face height, 50% of eye height).
func LandmarkRegion(points []image.Point, face detection.FaceRegion) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}

	box := image.Rectangle{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box.Min.X = min(box.Min.X, p.X)
		box.Min.Y = min(box.Min.Y, p.Y)
		box.Max.X = max(box.Max.X, p.X)
		box.Max.Y = max(box.Max.Y, p.Y)
	}

	fw := float64(face.Width())
	fh := float64(face.Height())
	mx := int(math.Ceil(math.Max(0.015*fw, 0.7*float64(box.Dx()))))
	my := int(math.Ceil(math.Max(0.015*fh, 0.5*float64(box.Dy()))))

	box = image.Rect(box.Min.X-mx, box.Min.Y-my, box.Max.X+mx, box.Max.Y+my)
	return box.Intersect(face.Rect())
}

// ProportionalRegions estimates both eye boxes from face geometry alone.
// Each box spans 30% of the face width (left at 15-45%, right at 55-85%)
// and 20% of the face height centred at 40%.
func ProportionalRegions(face detection.FaceRegion) (left, right image.Rectangle) {
	fw := float64(face.Width())
	fh := float64(face.Height())

	at := func(fx, fy float64) image.Point {
		return image.Pt(face.XMin+int(math.Round(fx*fw)), face.YMin+int(math.Round(fy*fh)))
	}

	left = image.Rectangle{Min: at(0.15, 0.30), Max: at(0.45, 0.50)}
	right = image.Rectangle{Min: at(0.55, 0.30), Max: at(0.85, 0.50)}
	return left, right
}

// Regions returns eye boxes from landmarks when available, falling back to
// proportional regions for any eye whose landmark box is empty.
func Regions(face detection.FaceRegion, leftPts, rightPts []image.Point) (left, right image.Rectangle, fromLandmarks bool) {
	pl, pr := ProportionalRegions(face)

	left = LandmarkRegion(leftPts, face)
	right = LandmarkRegion(rightPts, face)
	fromLandmarks = !left.Empty() && !right.Empty()

	if left.Empty() {
		left = pl
	}
	if right.Empty() {
		right = pr
	}
	return left, right, fromLandmarks
}
