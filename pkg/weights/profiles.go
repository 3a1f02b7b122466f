package weights

// Built-in profile names.
const (
	Default     = "default"
	Lecture     = "lecture"
	Interactive = "interactive"
	Exam        = "exam"
	GroupWork   = "group_work"

	// Learned is produced by Train and cannot be authored directly.
	Learned = "learned"
)

// DefaultProfile returns the profile used when no context matches.
func DefaultProfile() Profile {
	return Profile{
		FacePresence: 20,
		Emotion:      15,
		EyeState:     20,
		HeadPose:     15,
		Gaze:         15,
		Posture:      10,
		Gesture:      5,
	}
}

// DefaultProfiles returns the built-in context profiles.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		Default: DefaultProfile(),
		// Listening: attention and eyes matter most.
		Lecture: {
			FacePresence: 20, Emotion: 10, EyeState: 25, HeadPose: 20,
			Gaze: 15, Posture: 5, Gesture: 5,
		},
		// Discussion: expression and gestures carry engagement.
		Interactive: {
			FacePresence: 15, Emotion: 20, EyeState: 15, HeadPose: 10,
			Gaze: 10, Posture: 10, Gesture: 20,
		},
		// Heads down: presence and orientation dominate.
		Exam: {
			FacePresence: 25, Emotion: 5, EyeState: 20, HeadPose: 25,
			Gaze: 20, Posture: 3, Gesture: 2,
		},
		GroupWork: {
			FacePresence: 15, Emotion: 20, EyeState: 10, HeadPose: 10,
			Gaze: 10, Posture: 15, Gesture: 20,
		},
	}
}

// reserved reports whether name cannot be set through SetCustom.
func reserved(name string) bool {
	return name == Learned
}
