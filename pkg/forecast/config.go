package forecast

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridpilot/gridpilot/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the Solcast client based on flags. The client is
// usable without an API key as long as a fresh cache file exists.
func Configured() *Solcast {
	s := New(common.HTTPClient(time.Minute), "", nil, "", 1.0)

	apiKey := lflag.String("solcast-api-key", "", "Solcast rooftop API key")
	sites := lflag.String("solcast-sites", "", "Comma-separated Solcast rooftop site resource IDs")
	cache := lflag.String("solcast-cache", "solcast.json", "Path of the daily forecast cache file (empty to disable)")
	cal := lflag.String("solcast-cal", "1.0", "Calibration multiplier applied to forecast yields")

	lflag.Do(func() {
		s.apiKey = *apiKey
		for _, rid := range strings.Split(*sites, ",") {
			if rid = strings.TrimSpace(rid); rid != "" {
				s.siteIDs = append(s.siteIDs, rid)
			}
		}
		s.cachePath = *cache
		c, err := strconv.ParseFloat(*cal, 64)
		if err != nil || c <= 0 {
			panic(fmt.Sprintf("invalid solcast-cal %q", *cal))
		}
		s.calibration = c
	})

	return s
}
