package media

// Mode identifies which editing feature a picker selection belongs
// to. It is a closed set; wire strings outside it parse to
// ModeInvalid and are dropped, never guessed.
type Mode int

const (
	ModeInvalid Mode = iota
	ModeCreatePost
	ModeEditPost
	ModeNewComment
	ModeEditComment
	ModeProfilePicture
)

// modeNames maps modes to their wire representation.
var modeNames = map[Mode]string{
	ModeCreatePost:     "createPost",
	ModeEditPost:       "editPost",
	ModeNewComment:     "newComment",
	ModeEditComment:    "editComment",
	ModeProfilePicture: "profilePicture",
}

// String returns the wire name of the mode.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "invalid"
}

// ParseMode maps a wire string to a Mode. Unknown strings return
// ModeInvalid and false.
func ParseMode(s string) (Mode, bool) {
	for m, name := range modeNames {
		if name == s {
			return m, true
		}
	}
	return ModeInvalid, false
}
