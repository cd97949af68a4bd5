package screen

// UnknownActivity is reported when the foreground window can't be resolved.
const UnknownActivity = "Unknown"

// ActivityProbe reports whether the user is active and what is in front.
type ActivityProbe interface {
	Active() bool
	Foreground() (app, title string)
}

// StaticProbe always reports an active user with an unknown foreground.
type StaticProbe struct{}

// Active reports true.
func (StaticProbe) Active() bool { return true }

// Foreground reports UnknownActivity for both app and title.
func (StaticProbe) Foreground() (string, string) {
	return UnknownActivity, UnknownActivity
}
