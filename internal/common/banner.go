package common

import (
	"fmt"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner with the settings a run depends on
func PrintBanner(config *Config, version string) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetWidth(60)

	b.PrintTopLine()
	b.PrintCenteredText(fmt.Sprintf("Vigil %s", version))
	b.PrintSeparatorLine()
	b.PrintKeyValue("Base URL", config.Runner.BaseURL, 12)
	b.PrintKeyValue("Headless", fmt.Sprintf("%t", config.Browser.Headless), 12)
	b.PrintKeyValue("Report", fmt.Sprintf("%s -> %s", config.Report.Format, config.Report.Destination), 12)
	b.PrintBottomLine()
}
