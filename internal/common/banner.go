package common

import (
	"github.com/ternarybob/banner"
)

// AppName is the display name printed in the startup banner
const AppName = "Portal Smoke"

// PrintBanner displays the application banner
func PrintBanner(version string) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetWidth(60).
		SetBold(true)

	b.PrintTopLine()
	b.PrintCenteredText(AppName)
	b.PrintCenteredText("Version " + version)
	b.PrintBottomLine()
}
