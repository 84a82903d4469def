package pvoutput

import (
	"time"

	"github.com/gridpilot/gridpilot/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the pvoutput.org client based on flags. Uploads are
// skipped when the credentials are left empty.
func Configured() *Client {
	c := New(common.HTTPClient(time.Minute), "", "")

	apiKey := lflag.String("pv-api-key", "", "pvoutput.org API key")
	systemID := lflag.String("pv-system-id", "", "pvoutput.org system ID")

	lflag.Do(func() {
		c.apiKey = *apiKey
		c.systemID = *systemID
	})

	return c
}
