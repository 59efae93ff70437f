package audiobridge

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Diagnostics logs platform and audio routing information useful when
// bringing the gateway up on a new handset. Everything is best effort:
// probe failures are logged and ignored.
func Diagnostics(r Runner, log *logrus.Entry) {
	platform := DetectPlatform(r)
	if platform == "" {
		platform = "unknown"
	}
	log.Infof("platform: %s", platform)

	if err := r.Run("tinymix --version"); err != nil {
		log.Warnf("tinymix not available: %v", err)
	} else {
		log.Info("tinymix: available")
	}

	if out, err := r.Output("cat /proc/asound/pcm"); err != nil {
		log.Warnf("could not list PCM devices: %v", err)
	} else {
		log.Infof("active PCM devices:\n%s", strings.TrimSpace(out))
	}
}
