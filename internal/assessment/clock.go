package assessment

import "fmt"

// FormatClock renders seconds as MM:SS. Minutes are not capped at 59,
// so 3600 renders as "60:00". Negative input renders as "00:00".
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
