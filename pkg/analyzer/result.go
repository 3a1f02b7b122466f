package analyzer

import (
	"time"

	"github.com/teslashibe/go-engage/pkg/detection"
	"github.com/teslashibe/go-engage/pkg/engagement"
	"github.com/teslashibe/go-engage/pkg/eyestate"
	"github.com/teslashibe/go-engage/pkg/gaze"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/lighting"
	"github.com/teslashibe/go-engage/pkg/weights"
)

// Result is the per-frame analysis.
type Result struct {
	Frame     int       `json:"frame"`
	Timestamp time.Time `json:"timestamp"`
	Context   string    `json:"context"`

	EngagementScore float64          `json:"engagement_score"`
	RawScore        float64          `json:"raw_score"`
	WeightedScore   float64          `json:"weighted_score"`
	Level           engagement.Level `json:"level"`
	ComponentScores weights.Scores   `json:"component_scores"`
	Weights         weights.Profile  `json:"weights"`

	Trend             engagement.Trend `json:"trend"`
	TrendDuration     int              `json:"trend_duration"`
	NeedsIntervention bool             `json:"needs_intervention"`

	FaceDetected     bool                  `json:"face_detected"`
	Face             *detection.FaceRegion `json:"face,omitempty"`
	FaceAbsentFrames int                   `json:"face_absent_frames"`

	EyeStates eyestate.Result     `json:"eye_states"`
	Blinks    eyestate.BlinkStats `json:"blinks"`
	Gaze      gaze.Vector         `json:"gaze_vector"`
	HeadPose  inference.HeadPose  `json:"head_pose"`
	Emotion   inference.Emotion   `json:"emotion"`
	Lighting  lighting.Report     `json:"lighting"`

	ProcessingTime time.Duration `json:"processing_time_ns"`
}
