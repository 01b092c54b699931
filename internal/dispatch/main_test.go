package dispatch

import (
	"os"
	"testing"

	"github.com/mattjoyce/uploader/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", nil)
	os.Exit(m.Run())
}
