package cloud

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/gridpilot/gridpilot/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the FoxESS cloud accessor based on flags.
func Configured() *FoxESS {
	f := &FoxESS{
		client:  common.HTTPClient(time.Minute),
		baseURL: "https://www.foxesscloud.com",
		lang:    "en",
		now:     time.Now,
	}

	username := lflag.RequiredString("fox-username", "FoxESS cloud account email")
	password := lflag.RequiredString("fox-password", "FoxESS cloud account password")
	flipCT2 := lflag.Bool("flip-ct2", false, "Invert the CT2 meter channel (sensor wired reversed)")

	lflag.Do(func() {
		f.username = *username
		hash := md5.Sum([]byte(*password))
		f.md5Password = hex.EncodeToString(hash[:])
		f.flipCT2 = *flipCT2
	})

	return f
}
