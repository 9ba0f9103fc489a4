package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCountdown converts the portal's "MM:SS" countdown text into seconds.
func ParseCountdown(text string) (int, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("countdown %q is not MM:SS", text)
	}
	minutes, err := strconv.Atoi(parts[0])
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("countdown %q has invalid minutes", text)
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("countdown %q has invalid seconds", text)
	}
	return minutes*60 + seconds, nil
}
